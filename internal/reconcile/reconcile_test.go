package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailmanager/internal"
	"emailmanager/internal/util"
)

func TestGroupCoversEnumeration(t *testing.T) {
	msgs := []*internal.Message{
		{MessageID: "1", Stage1Category: internal.CategoryTrash},
		{MessageID: "2", Stage1Category: internal.CategoryPaper},
		{MessageID: "3", Stage1Category: "paper"},
		{MessageID: "4", Stage1Category: "ACADEMIC"},
		{MessageID: "5"},
	}
	g := Group(msgs)
	assert.Len(t, g, len(internal.Categories))
	assert.Len(t, g[internal.CategoryTrash], 1)
	assert.Len(t, g[internal.CategoryPaper], 2)
	assert.Len(t, g[internal.CategoryUnknown], 2)
	assert.Len(t, g[internal.CategoryExam], 0)

	total := 0
	for _, n := range g.Counts() {
		total += n
	}
	assert.Equal(t, len(msgs), total)
}

func TestParseLabel(t *testing.T) {
	cases := map[string]Family{
		"Paper/InProgress": FamilyPaper,
		"Paper/Journal":    FamilyPaper,
		"Review/Active":    FamilyReview,
		"Academic/Trash":   FamilyTrash,
		"Spam/Trash":       FamilyTrash,
		"PAPER":            FamilyOther,
		"Action/Important": FamilyOther,
		"":                 FamilyOther,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLabel(in).Family, in)
	}
}

func TestDecidePaperFromItemCategory(t *testing.T) {
	m := &internal.Message{Stage1Category: internal.CategoryUnknown, FinalCategory: "Action/Important"}
	res := internal.Stage2Result{
		Items: []internal.AcademicItem{
			{Category: "Review/Active", SourceEmails: []int{2}, Venue: "Cities"},
			{Category: "Paper/InProgress", SourceEmails: []int{1}, Journal: "Urban Studies"},
		},
	}
	d := Decide(m, 1, res)
	assert.True(t, d.IsPaper)
	assert.False(t, d.IsReview)
	assert.True(t, d.Sync)
	assert.Equal(t, BucketAcademic, d.Bucket)
	assert.Equal(t, "Urban Studies", d.Venue)
	assert.Equal(t, "Paper/InProgress", d.Stage2Category)
	assert.Equal(t, AcademicImportance, d.Importance)
}

func TestDecideReviewBucket(t *testing.T) {
	m := &internal.Message{Stage1Category: internal.CategoryReview}
	res := internal.Stage2Result{Classifications: []internal.Classification{{ID: 1, Category: "Review/Active"}}}
	d := Decide(m, 1, res)
	assert.True(t, d.Sync)
	assert.Equal(t, BucketReview, d.Bucket)
}

func TestDecideTrashNeverSyncs(t *testing.T) {
	m := &internal.Message{
		Stage1Category: internal.CategoryPaper,
		FinalCategory:  "Academic/Trash",
		NeedsAction:    util.BoolPtr(true),
	}
	res := internal.Stage2Result{Items: []internal.AcademicItem{{Category: "Paper/InProgress", SourceEmails: []int{1}}}}
	d := Decide(m, 1, res)
	assert.True(t, d.IsTrash)
	assert.True(t, d.IsPaper)
	assert.False(t, d.Sync)
	assert.Empty(t, d.Bucket)
}

func TestDecideNeedsActionAlone(t *testing.T) {
	m := &internal.Message{Stage1Category: internal.CategoryUnknown, FinalCategory: "Action/Important", NeedsAction: util.BoolPtr(true), Importance: 4}
	d := Decide(m, 1, internal.Stage2Result{})
	assert.True(t, d.Sync)
	assert.Equal(t, BucketAcademic, d.Bucket)
	assert.Equal(t, 4, d.Importance)
}

func TestDecideNoStage2(t *testing.T) {
	m := &internal.Message{Stage1Category: internal.CategoryUnknown}
	d := Decide(m, 1, internal.Stage2Result{})
	assert.Equal(t, "Unknown", d.FinalCategory)
	assert.False(t, d.Sync)
	assert.Equal(t, "Unknown", d.Stage2Category)
}

func TestDecideDefault(t *testing.T) {
	exam := &internal.Message{Stage1Category: internal.CategoryExam}
	d := DecideDefault(exam)
	assert.True(t, d.Sync)
	assert.Equal(t, BucketExam, d.Bucket)
	assert.Equal(t, 5, d.Importance)
	assert.True(t, d.NeedsAction)

	bill := &internal.Message{Stage1Category: internal.CategoryBilling, RuleMatched: true, RuleImportance: 3}
	d = DecideDefault(bill)
	assert.Equal(t, 3, d.Importance)
	assert.Equal(t, BucketBilling, d.Bucket)

	personal := &internal.Message{Stage1Category: internal.CategoryPersonal, Importance: 4, NeedsAction: util.BoolPtr(true), Summary: "周五开会讨论合作项目安排以及后续分工细节确认"}
	d = DecideDefault(personal)
	assert.Equal(t, 4, d.Importance)
	assert.True(t, d.NeedsAction)
	require.Equal(t, 20, len([]rune(d.Summary)))

	trash := &internal.Message{Stage1Category: internal.CategoryTrash}
	d = DecideDefault(trash)
	assert.False(t, d.Sync)
	assert.True(t, d.IsTrash)
}

func TestDecideDefaultHonoursStage2Trash(t *testing.T) {
	notice := &internal.Message{Stage1Category: internal.CategoryNotice, FinalCategory: "Academic/Trash", Importance: 1}
	d := DecideDefault(notice)
	assert.True(t, d.IsTrash)
	assert.False(t, d.Sync)
	assert.Empty(t, d.Bucket)
	assert.Equal(t, 1, d.Importance)
	assert.Equal(t, "Academic/Trash", d.Stage2Category)
}
