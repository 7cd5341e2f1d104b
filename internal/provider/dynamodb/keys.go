package dynamodb

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/snapline-io/snapline/pkg/types"
)

// PK/SK prefix constants. Input relations live in fixed partitions loaded by
// ingestion; snapshot records are partitioned by snapshot ID.
const (
	pkPackageLines     = "INPUT#PACKAGE_LINES"
	pkAssignments      = "INPUT#ASSIGNMENTS"
	pkEvidencePrefix   = "INPUT#EVIDENCE#"
	pkInvoiceLines     = "INPUT#INVOICE_LINES"
	pkInvoiceReversals = "INPUT#INVOICE_REVERSALS"

	prefixSnapshot = "SNAPSHOT#"
	prefixLine     = "LINE#"
	prefixSummary  = "SUMMARY#"
	prefixEvents   = "EVENTS#"
	prefixEvent    = "EVENT#"
	prefixLease    = "LEASE#"

	pkPointer = "POINTER"

	skMeta    = "META"
	skCurrent = "CURRENT"
	skLease   = "LEASE"

	gsiSnapshotList = "SNAPSHOT"
)

func evidencePK(et types.EvidenceType) string { return pkEvidencePrefix + string(et) }

func snapshotPK(id string) string { return prefixSnapshot + id }

func lineSK(pkg, floc string) string { return prefixLine + pkg + "#" + floc }

func summarySK(pkg string) string { return prefixSummary + pkg }

// snapshotListSK orders snapshots newest-first on GSI1 when queried descending.
func snapshotListSK(createdAt time.Time, id string) string {
	return prefixSnapshot + createdAt.UTC().Format(time.RFC3339Nano) + "#" + id
}

func eventsPK(snapshotID string) string {
	if snapshotID == "" {
		return prefixEvents + "-"
	}
	return prefixEvents + snapshotID
}

func eventSK(ts time.Time) string {
	millis := ts.UnixMilli()
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s%013d#%s", prefixEvent, millis, hex.EncodeToString(nonce))
}

func leasePK(key string) string { return prefixLease + key }

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}

func isExpired(epoch int64) bool {
	return epoch > 0 && time.Now().Unix() > epoch
}
