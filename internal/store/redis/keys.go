package redis

const (
	// KeyPrefixLiveness is the prefix for liveness hashes
	KeyPrefixLiveness = "environment:"
	// KeyGlobalCounters is the hash holding the latest player counters
	KeyGlobalCounters = "global:playerCount"
)

// Liveness hash fields
const (
	fieldPlayerCount       = "playerCount"
	fieldLastHeartbeat     = "lastHeartbeat"
	fieldPlayerList        = "playerList"
	fieldReportedHeartbeat = "reportedHeartbeat"

	fieldVisible = "visible"
	fieldActual  = "actual"
)

// LivenessKey returns the Redis key for a server's liveness hash
func LivenessKey(serverID string) string {
	return KeyPrefixLiveness + serverID
}
