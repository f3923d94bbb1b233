package search

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func fixtureRecords() []SectionRecord {
	return []SectionRecord{
		{ID: RecordID("default", "holidays"), PlanID: "default", SectionID: "holidays", Title: "Holidays", Content: "Thanksgiving alternates between households every year.", Status: "not_approved"},
		{ID: RecordID("default", "custody"), PlanID: "default", SectionID: "custody", Title: "Custody", Content: "Joint legal custody. Holidays follow the holiday schedule.", Status: "needs_review"},
		{ID: RecordID("other", "holidays"), PlanID: "other", SectionID: "holidays", Title: "Holidays", Content: "Holidays in another plan.", Status: "approved"},
	}
}

func loader(records []SectionRecord, err error) func(context.Context) ([]SectionRecord, error) {
	return func(context.Context) ([]SectionRecord, error) { return records, err }
}

func TestScanSearcherRanksTitleMatchesFirst(t *testing.T) {
	s := NewScanSearcher(loader(fixtureRecords(), nil))

	results, total, err := s.Search(Query{Text: "holidays", PlanID: "default"})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "holidays", results[0].SectionID)
	require.Equal(t, "custody", results[1].SectionID)
}

func TestScanSearcherRequiresEveryTerm(t *testing.T) {
	s := NewScanSearcher(loader(fixtureRecords(), nil))

	results, total, err := s.Search(Query{Text: "joint HOLIDAY", PlanID: "default"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "custody", results[0].SectionID)
	require.Contains(t, results[0].Snippet, "Joint")
}

func TestScanSearcherFiltersAndPages(t *testing.T) {
	s := NewScanSearcher(loader(fixtureRecords(), nil))

	results, total, err := s.Search(Query{Text: "holidays", Status: "approved"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "approved", results[0].Status)

	results, total, err = s.Search(Query{Text: "holidays", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, results, 1)

	results, _, err = s.Search(Query{Text: "holidays", Offset: 10})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestScanSearcherBlankQuery(t *testing.T) {
	s := NewScanSearcher(loader(fixtureRecords(), nil))
	results, total, err := s.Search(Query{Text: "  ?! "})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, results)
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	svc := NewService(nil, NewScanSearcher(loader(fixtureRecords(), nil)), nil)
	resp := svc.Search(Query{Text: "thanksgiving"})
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "thanksgiving", resp.Query)
	require.Equal(t, "holidays", resp.Results[0].SectionID)
}

func TestServiceSwallowsFallbackErrors(t *testing.T) {
	svc := NewService(nil, NewScanSearcher(loader(nil, errors.New("boom"))), nil)
	resp := svc.Search(Query{Text: "custody"})
	require.NotNil(t, resp.Results)
	require.Empty(t, resp.Results)
	require.Zero(t, resp.Total)

	empty := NewService(nil, nil, nil)
	require.NotNil(t, empty.Search(Query{Text: "custody"}).Results)
}

func TestRecordIDIsKeySafe(t *testing.T) {
	require.Equal(t, "default__parenting-time", RecordID("default", "parenting-time"))
	require.Equal(t, "plan_1__a_b", RecordID("plan 1", "a/b"))
}

func TestPgFTSSearch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM plan_sections WHERE")).
		WithArgs("weekend schedule", "default").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT section_id, title,")).
		WithArgs("weekend schedule", "default").
		WillReturnRows(sqlmock.NewRows([]string{"section_id", "title", "snippet"}).
			AddRow("parenting-time", "Parenting Time", "alternate <b>weekend</b> <b>schedule</b>"))

	results, total, err := NewPgFTS(db).Search(Query{Text: "weekend schedule", PlanID: "default"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, []Result{{SectionID: "parenting-time", Title: "Parenting Time", Snippet: "alternate <b>weekend</b> <b>schedule</b>"}}, results)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFTSBlankQuerySkipsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	results, total, err := NewPgFTS(db).Search(Query{Text: "   "})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Nil(t, results)
	require.NoError(t, mock.ExpectationsWereMet())
}
