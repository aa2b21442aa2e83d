package mysql

import (
	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(&dialect{})
}
