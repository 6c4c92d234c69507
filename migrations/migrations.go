package migrations

import (
	"github.com/AvaProtocol/ap-bundler/core/migrator"
)

// Migrations run in order at startup. Names are recorded in the database
// once applied, so never rename one that has shipped.
var Migrations = []migrator.Migration{
	{
		Name:     "20250920-101500-normalize-bundle-settings",
		Function: NormalizeBundleSettings,
	},
	{
		Name:     "20250920-103000-rebuild-submission-counters",
		Function: RebuildSubmissionCounters,
	},
}
