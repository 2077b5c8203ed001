package database

import (
	"strings"
	"testing"
)

func TestSchemaCoversTables(t *testing.T) {
	joined := strings.Join(schema, "\n")
	for _, table := range []string{
		"users", "activity_logs", "streak_states", "streak_freezes",
		"points_balances", "ledger_entries", "rewards", "user_reward_grants",
		"active_boosters", "feature_usage_counters", "subscriptions",
		"redemption_codes", "code_redemptions", "preferences",
	} {
		if !strings.Contains(joined, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("schema lacks %s", table)
		}
	}
	for i, stmt := range schema {
		if strings.Count(stmt, ";") > 0 {
			t.Errorf("statement %d holds a separator; the driver runs one statement per Exec", i+1)
		}
	}
}
