package shared

import "fmt"

// AgentLedgerLockKey names the advisory lock serialising one agent's ledger.
func AgentLedgerLockKey(agentID int64) string {
	return fmt.Sprintf("agent-ledger:%d", agentID)
}

// AgentReportCacheKey builds the redis version key for one agent's reports.
func AgentReportCacheKey(agentID int64) string {
	return fmt.Sprintf("reports:agent:%d", agentID)
}
