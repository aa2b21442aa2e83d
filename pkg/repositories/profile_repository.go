package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datapilot-ai/datapilot-engine/pkg/database"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// ProfileRepository provides data access for per-user behavioral profiles.
type ProfileRepository interface {
	// Get returns nil for a user with no profile yet; absence is normal.
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	Upsert(ctx context.Context, profile *models.UserProfile) error
}

type profileRepository struct {
	coll *mongo.Collection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(state *database.State) ProfileRepository {
	return &profileRepository{coll: state.DB.Collection(profileCollection)}
}

var _ ProfileRepository = (*profileRepository)(nil)

func (r *profileRepository) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (r *profileRepository) Upsert(ctx context.Context, profile *models.UserProfile) error {
	profile.UpdatedAt = time.Now().UTC()

	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": profile.UserID},
		profile,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
