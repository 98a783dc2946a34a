package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velhola/gleaner/types"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func testFinding(resourceID, scenarioID string) types.Finding {
	return types.Finding{
		ResourceID:   resourceID,
		ResourceKind: types.KindDisk,
		ScenarioID:   scenarioID,
		Provider:     "aws",
		AccountID:    "123456789012",
		Region:       "eu-west-1",
		Summary:      "disk detached for over a week",
		DetectedAt:   time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func coveredReport(id string, kinds ...types.Kind) types.ScanReport {
	report := types.ScanReport{
		ID:     id,
		Status: types.ScanCompleted,
	}
	for _, kind := range kinds {
		report.Coverage = append(report.Coverage, types.KindCoverage{
			AccountID: "123456789012",
			Kind:      kind,
			Outcome:   types.KindScanned,
		})
	}
	return report
}

func TestSaveScanPersistsFindings(t *testing.T) {
	store, _ := openTestStore(t)

	seq, err := store.SaveScan(coveredReport("scan-1", types.KindDisk),
		[]types.Finding{testFinding("vol-1", "unattached-disk"), testFinding("vol-2", "unattached-disk")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	assert.Equal(t, int64(1), store.Sequence())

	record, found := store.Record("vol-1/unattached-disk")
	require.True(t, found)
	assert.True(t, record.Open)
	assert.Equal(t, int64(1), record.FirstSeenSeq)
	assert.Equal(t, int64(1), record.LastSeenSeq)

	open, err := store.OpenFindings(FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestCoveredScanResolvesMissingFindings(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.SaveScan(coveredReport("scan-1", types.KindDisk),
		[]types.Finding{testFinding("vol-1", "unattached-disk")})
	require.NoError(t, err)

	// Next scan covers disks and no longer reports the finding.
	_, err = store.SaveScan(coveredReport("scan-2", types.KindDisk), nil)
	require.NoError(t, err)

	record, found := store.Record("vol-1/unattached-disk")
	require.True(t, found)
	assert.False(t, record.Open)
	assert.Equal(t, int64(2), record.ResolvedSeq)

	open, err := store.OpenFindings(FindingFilter{})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSkippedKindLeavesFindingsOpen(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.SaveScan(coveredReport("scan-1", types.KindDisk),
		[]types.Finding{testFinding("vol-1", "unattached-disk")})
	require.NoError(t, err)

	// The second scan skipped disks entirely, so absence proves nothing.
	report := types.ScanReport{
		ID:     "scan-2",
		Status: types.ScanPartiallyFailed,
		Coverage: []types.KindCoverage{{
			AccountID: "123456789012",
			Kind:      types.KindDisk,
			Outcome:   types.KindSkipped,
			Reason:    "permission denied: describe ebs volumes",
		}},
	}
	_, err = store.SaveScan(report, nil)
	require.NoError(t, err)

	record, found := store.Record("vol-1/unattached-disk")
	require.True(t, found)
	assert.True(t, record.Open, "a skipped kind must not resolve findings")
}

func TestFindingReappearanceReopens(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.SaveScan(coveredReport("scan-1", types.KindDisk),
		[]types.Finding{testFinding("vol-1", "unattached-disk")})
	require.NoError(t, err)
	_, err = store.SaveScan(coveredReport("scan-2", types.KindDisk), nil)
	require.NoError(t, err)
	_, err = store.SaveScan(coveredReport("scan-3", types.KindDisk),
		[]types.Finding{testFinding("vol-1", "unattached-disk")})
	require.NoError(t, err)

	record, found := store.Record("vol-1/unattached-disk")
	require.True(t, found)
	assert.True(t, record.Open)
	assert.Equal(t, int64(1), record.FirstSeenSeq, "reappearance keeps the original first-seen scan")
	assert.Equal(t, int64(3), record.LastSeenSeq)
	assert.Zero(t, record.ResolvedSeq)
}

func TestReopenRestoresIndexAndSequence(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	_, err = store.SaveScan(coveredReport("scan-1", types.KindDisk),
		[]types.Finding{testFinding("vol-1", "unattached-disk")})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, int64(1), reopened.Sequence())
	record, found := reopened.Record("vol-1/unattached-disk")
	require.True(t, found)
	assert.True(t, record.Open)

	open, err := reopened.OpenFindings(FindingFilter{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "vol-1", open[0].ResourceID)
}

func TestOpenFindingsFilter(t *testing.T) {
	store, _ := openTestStore(t)

	suppressed := testFinding("vol-2", "unattached-disk")
	suppressed.Suppressed = true
	other := testFinding("snap-1", "aged-snapshot")
	other.ResourceKind = types.KindSnapshot

	_, err := store.SaveScan(coveredReport("scan-1", types.KindDisk, types.KindSnapshot),
		[]types.Finding{testFinding("vol-1", "unattached-disk"), suppressed, other})
	require.NoError(t, err)

	disks, err := store.OpenFindings(FindingFilter{Kind: types.KindDisk})
	require.NoError(t, err)
	assert.Len(t, disks, 1, "suppressed findings are hidden by default")

	all, err := store.OpenFindings(FindingFilter{Kind: types.KindDisk, IncludeSuppressed: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byScenario, err := store.OpenFindings(FindingFilter{ScenarioID: "aged-snapshot"})
	require.NoError(t, err)
	require.Len(t, byScenario, 1)
	assert.Equal(t, "snap-1", byScenario[0].ResourceID)
}

func TestReportsNewestFirst(t *testing.T) {
	store, _ := openTestStore(t)

	for _, id := range []string{"scan-1", "scan-2", "scan-3"} {
		_, err := store.SaveScan(coveredReport(id), nil)
		require.NoError(t, err)
	}

	reports, err := store.Reports(2)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "scan-3", reports[0].ID)
	assert.Equal(t, "scan-2", reports[1].ID)

	report, err := store.Report(1)
	require.NoError(t, err)
	assert.Equal(t, "scan-1", report.ID)

	_, err = store.Report(99)
	assert.Error(t, err)
}

func TestLastScanForAccount(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.SaveScan(coveredReport("scan-1", types.KindDisk), nil)
	require.NoError(t, err)

	other := types.ScanReport{
		ID:     "scan-2",
		Status: types.ScanCompleted,
		Coverage: []types.KindCoverage{
			{AccountID: "999999999999", Kind: types.KindDisk, Outcome: types.KindScanned},
		},
	}
	_, err = store.SaveScan(other, nil)
	require.NoError(t, err)

	report, found, err := store.LastScanFor("123456789012")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "scan-1", report.ID)

	report, found, err = store.LastScanFor("999999999999")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "scan-2", report.ID)

	_, found, err = store.LastScanFor("000000000000")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpenMonthlyWaste(t *testing.T) {
	store, _ := openTestStore(t)

	a := testFinding("vol-1", "unattached-disk")
	a.Cost.TotalMonthly = decimal.RequireFromString("12.50")
	b := testFinding("vol-2", "unattached-disk")
	b.Cost.TotalMonthly = decimal.RequireFromString("3.25")
	suppressed := testFinding("vol-3", "unattached-disk")
	suppressed.Suppressed = true
	suppressed.Cost.TotalMonthly = decimal.RequireFromString("100")

	_, err := store.SaveScan(coveredReport("scan-1", types.KindDisk),
		[]types.Finding{a, b, suppressed})
	require.NoError(t, err)

	total, err := store.OpenMonthlyWaste()
	require.NoError(t, err)
	assert.Equal(t, "15.75", total.StringFixed(2))

	// A covered scan without vol-2 resolves it and drops its cost.
	_, err = store.SaveScan(coveredReport("scan-2", types.KindDisk), []types.Finding{a})
	require.NoError(t, err)

	total, err = store.OpenMonthlyWaste()
	require.NoError(t, err)
	assert.Equal(t, "12.50", total.StringFixed(2))
}

func TestCompactKeepsRecentScans(t *testing.T) {
	store, _ := openTestStore(t)

	for i := 0; i < 4; i++ {
		_, err := store.SaveScan(coveredReport("scan", types.KindDisk),
			[]types.Finding{testFinding("vol-1", "unattached-disk")})
		require.NoError(t, err)
	}

	require.NoError(t, store.Compact(2))

	_, err := store.Report(1)
	assert.Error(t, err, "compacted reports are gone")
	_, err = store.Report(4)
	assert.NoError(t, err)

	// The lifecycle record and its latest payload survive.
	record, found := store.Record("vol-1/unattached-disk")
	require.True(t, found)
	assert.True(t, record.Open)

	open, err := store.OpenFindings(FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
