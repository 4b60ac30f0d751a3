package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailmanager/internal"
	"emailmanager/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMarkProcessedLastWriteWins(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.MarkProcessed(internal.ProcessedMarker{
		MessageID:    "<m1@x>",
		Account:      "QQ邮箱",
		Subject:      "first",
		Stage1Result: "PAPER",
		Synced:       false,
	}))
	require.NoError(t, db.MarkProcessed(internal.ProcessedMarker{
		MessageID:      "<m1@x>",
		Account:        "PKU邮箱",
		Subject:        "second",
		Stage1Result:   "REVIEW",
		Stage2Category: "Review/Active",
		Synced:         true,
		MarkedRead:     true,
	}))

	stats, err := db.MarkerStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	m, err := db.GetMarker("<m1@x>")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "PKU邮箱", m.Account)
	assert.Equal(t, "second", m.Subject)
	assert.Equal(t, "REVIEW", m.Stage1Result)
	assert.Equal(t, "Review/Active", m.Stage2Category)
	assert.True(t, m.Synced)
	assert.True(t, m.MarkedRead)
}

func TestMarkProcessedIgnoresEmptyID(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MarkProcessed(internal.ProcessedMarker{Subject: "no id"}))
	ids, err := db.ProcessedIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMarkProcessedTruncatesSubject(t *testing.T) {
	db := openTestDB(t)
	long := ""
	for i := 0; i < 300; i++ {
		long += "题"
	}
	require.NoError(t, db.MarkProcessed(internal.ProcessedMarker{MessageID: "<long>", Subject: long}))
	m, err := db.GetMarker("<long>")
	require.NoError(t, err)
	assert.Equal(t, 200, len([]rune(m.Subject)))
}

func TestProcessedIDsAndFlags(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MarkProcessed(internal.ProcessedMarker{MessageID: "<a>", Stage1Result: "TRASH", MarkedRead: true}))
	require.NoError(t, db.MarkProcessed(internal.ProcessedMarker{MessageID: "<b>", Stage1Result: "NOTICE"}))

	ids, err := db.ProcessedIDs()
	require.NoError(t, err)
	assert.Contains(t, ids, "<a>")
	assert.Contains(t, ids, "<b>")
	assert.NotContains(t, ids, "<c>")

	missing, err := db.GetMarker("<c>")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.SetMarkedRead("<a>", false))
	a, _ := db.GetMarker("<a>")
	assert.False(t, a.MarkedRead)

	stats, err := db.MarkerStats()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"TRASH": 1, "NOTICE": 1}, stats.ByStage1)
	assert.Empty(t, stats.ByCategory)
}

func TestCleanupOld(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MarkProcessed(internal.ProcessedMarker{MessageID: "<old>", ProcessedAt: time.Now().AddDate(0, 0, -45)}))
	require.NoError(t, db.MarkProcessed(internal.ProcessedMarker{MessageID: "<new>"}))

	recent, err := db.ListMarkers(time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "<new>", recent[0].MessageID)

	n, err := db.CleanupOld(30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	ids, err := db.ProcessedIDs()
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"<new>": {}}, ids)
}

func TestBillingRecordChangeDetection(t *testing.T) {
	db := openTestDB(t)

	itemID, created, err := db.GetOrCreateBillingItem("招商银行信用卡", "credit_card", ItemInput{})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := db.GetOrCreateBillingItem("招商银行信用卡", "membership", ItemInput{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, itemID, again)

	recID, isNew, changed, err := db.AddOrUpdateBillingRecord(itemID, RecordInput{Period: "2024-01", Amount: util.FloatPtr(100)})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.True(t, changed)

	id2, isNew, changed, err := db.AddOrUpdateBillingRecord(itemID, RecordInput{Period: "2024-01", Amount: util.FloatPtr(100)})
	require.NoError(t, err)
	assert.Equal(t, recID, id2)
	assert.False(t, isNew)
	assert.False(t, changed)

	_, _, changed, err = db.AddOrUpdateBillingRecord(itemID, RecordInput{Period: "2024-01", Amount: util.FloatPtr(150)})
	require.NoError(t, err)
	assert.True(t, changed)

	records, err := db.BillingRecordsForItem(itemID, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Amount)
	assert.Equal(t, 150.0, *records[0].Amount)
	assert.Equal(t, "招商银行信用卡", records[0].ItemName)
	assert.Equal(t, RecordPending, records[0].Status)
}

func TestBillingRecordCoalesceKeepsFields(t *testing.T) {
	db := openTestDB(t)
	itemID, _, err := db.GetOrCreateBillingItem("Netflix", "membership", ItemInput{Currency: "USD"})
	require.NoError(t, err)

	_, _, _, err = db.AddOrUpdateBillingRecord(itemID, RecordInput{
		Period:  "2024-02",
		Amount:  util.FloatPtr(15.49),
		DueDate: util.StringPtr("2024-02-20"),
		Notes:   util.StringPtr("auto renew"),
	})
	require.NoError(t, err)

	_, _, changed, err := db.AddOrUpdateBillingRecord(itemID, RecordInput{Period: "2024-02", DueDate: util.StringPtr("2024-02-21")})
	require.NoError(t, err)
	assert.True(t, changed)

	recs, err := db.BillingRecordsForItem(itemID, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 15.49, *recs[0].Amount)
	assert.Equal(t, "2024-02-21", *recs[0].DueDate)
	assert.Equal(t, "auto renew", *recs[0].Notes)
}

func TestPendingAndPaid(t *testing.T) {
	db := openTestDB(t)
	cardID, _, _ := db.GetOrCreateBillingItem("交通银行信用卡", "credit_card", ItemInput{})
	subID, _, _ := db.GetOrCreateBillingItem("Spotify", "membership", ItemInput{})

	r1, _, _, err := db.AddOrUpdateBillingRecord(cardID, RecordInput{Period: "2024-03", DueDate: util.StringPtr("2024-03-25")})
	require.NoError(t, err)
	_, _, _, err = db.AddOrUpdateBillingRecord(subID, RecordInput{Period: "2024-03", DueDate: util.StringPtr("2024-03-10")})
	require.NoError(t, err)

	pending, err := db.PendingBillingRecords()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "Spotify", pending[0].ItemName)

	require.NoError(t, db.MarkBillingRecordPaid(r1))
	pending, err = db.PendingBillingRecords()
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	summary, err := db.BillingSummary()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalItems)
	assert.Equal(t, map[string]int{"credit_card": 1, "membership": 1}, summary.ByType)
	assert.Equal(t, 1, summary.PendingRecords)

	require.NoError(t, db.UpdateBillingItemRemoteID(cardID, "page-1"))
	item, err := db.GetBillingItemByName("交通银行信用卡")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "page-1", *item.RemotePageID)
	assert.NotNil(t, item.SyncedAt)

	missing, err := db.GetBillingItemByName("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMetadataAndRuns(t *testing.T) {
	db := openTestDB(t)
	v, err := db.GetMetadata("notion.db.papers")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, db.SetMetadata("notion.db.papers", "abc"))
	require.NoError(t, db.SetMetadata("notion.db.papers", "def"))
	v, err = db.GetMetadata("notion.db.papers")
	require.NoError(t, err)
	assert.Equal(t, "def", *v)

	require.NoError(t, db.InsertRun("run-1", "check", map[string]float64{"total": 1.5}, map[string]int{"new": 3}))
	runs, err := db.ListRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, 3, runs[0].Counts["new"])
	assert.Equal(t, 1.5, runs[0].Timings["total"])
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.MarkProcessed(internal.ProcessedMarker{MessageID: "<keep>"}))
	require.NoError(t, db.Close())

	db, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()
	m, err := db.GetMarker("<keep>")
	require.NoError(t, err)
	require.NotNil(t, m)
}
