package jobflow

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/JAY4T/kaakazini/internal/models"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	m         *Machine
	job       *models.JobRequest
	admin     Actor
	client    Actor
	craftsman Actor
	other     Actor
	profile   *models.CraftsmanProfile
	otherClnt Actor
}

func newFixture(policy QuoteRejectPolicy) *fixture {
	clientID := uuid.New()
	profile := &models.CraftsmanProfile{ID: uuid.New(), UserID: uuid.New(), Status: models.ApprovalApproved, IsApproved: true, IsActive: true}
	otherProfile := &models.CraftsmanProfile{ID: uuid.New(), UserID: uuid.New(), Status: models.ApprovalApproved, IsApproved: true, IsActive: true}

	m := New(policy)
	m.Now = func() time.Time { return fixedNow }

	return &fixture{
		m:         m,
		job:       &models.JobRequest{ID: uuid.New(), ClientID: clientID, Service: "Plumbing", Status: models.JobPending},
		admin:     Actor{UserID: uuid.New(), Role: models.RoleAdmin},
		client:    Actor{UserID: clientID, Role: models.RoleClient},
		craftsman: NewActor(profile.UserID, models.RoleCraftsman, profile, ""),
		other:     NewActor(otherProfile.UserID, models.RoleCraftsman, otherProfile, ""),
		profile:   profile,
		otherClnt: Actor{UserID: uuid.New(), Role: models.RoleClient},
	}
}

func (f *fixture) apply(t *testing.T, a Actor, ev Event, in Input) {
	t.Helper()
	require.NoError(t, f.m.Apply(f.job, a, ev, in))
}

func TestHappyPathToPaid(t *testing.T) {
	f := newFixture(RejectRelease)

	f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})
	assert.Equal(t, models.JobAssigned, f.job.Status)
	require.NotNil(t, f.job.CraftsmanID)
	assert.Equal(t, f.profile.ID, *f.job.CraftsmanID)

	f.apply(t, f.craftsman, EventAccept, Input{})
	assert.Equal(t, models.JobAccepted, f.job.Status)

	f.apply(t, f.craftsman, EventStart, Input{})
	assert.Equal(t, models.JobInProgress, f.job.Status)
	require.NotNil(t, f.job.StartTime)
	assert.Equal(t, fixedNow, *f.job.StartTime)

	f.apply(t, f.craftsman, EventComplete, Input{ProofImages: []models.JobProofImage{{ImageURL: "https://cdn/x.jpg"}}})
	assert.Equal(t, models.JobCompleted, f.job.Status)
	require.NotNil(t, f.job.EndTime)
	require.Len(t, f.job.ProofImages, 1)
	assert.Equal(t, f.job.ID, f.job.ProofImages[0].JobID)

	f.apply(t, f.admin, EventAdminApprove, Input{})
	assert.Equal(t, models.JobApproved, f.job.Status)

	f.apply(t, f.admin, EventMarkPaid, Input{})
	assert.Equal(t, models.JobPaid, f.job.Status)
	assert.Equal(t, int64(6), f.job.Version)
}

func TestOnlyAssignedCraftsmanMayAct(t *testing.T) {
	f := newFixture(RejectRelease)
	f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})

	for _, ev := range []Event{EventAccept, EventSubmitQuote} {
		err := f.m.Apply(f.job, f.other, ev, Input{QuoteDetails: datatypes.JSON(`{"amount":1}`)})
		assert.ErrorIs(t, err, ErrForbidden, ev)
	}

	err := f.m.Apply(f.job, f.client, EventAccept, Input{})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, models.JobAssigned, f.job.Status)
}

func TestAssignGuards(t *testing.T) {
	f := newFixture(RejectRelease)

	assert.ErrorIs(t, f.m.Apply(f.job, f.client, EventAssign, Input{Craftsman: f.profile}), ErrForbidden)
	assert.ErrorIs(t, f.m.Apply(f.job, f.admin, EventAssign, Input{}), ErrValidation)

	pending := &models.CraftsmanProfile{ID: uuid.New(), Status: models.ApprovalPending, IsActive: true}
	assert.ErrorIs(t, f.m.Apply(f.job, f.admin, EventAssign, Input{Craftsman: pending}), ErrValidation)
	assert.Nil(t, f.job.CraftsmanID)
	assert.Equal(t, models.JobPending, f.job.Status)
}

func TestSecondAssignIsConflict(t *testing.T) {
	f := newFixture(RejectRelease)
	f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})

	other := &models.CraftsmanProfile{ID: uuid.New(), Status: models.ApprovalApproved, IsApproved: true, IsActive: true}
	err := f.m.Apply(f.job, f.admin, EventAssign, Input{Craftsman: other})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, f.profile.ID, *f.job.CraftsmanID)
}

func TestSubmitQuoteRoundTrip(t *testing.T) {
	f := newFixture(RejectRelease)
	f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})

	assert.ErrorIs(t, f.m.Apply(f.job, f.craftsman, EventSubmitQuote, Input{}), ErrValidation)

	f.apply(t, f.craftsman, EventSubmitQuote, Input{QuoteDetails: datatypes.JSON(`{"amount": 500}`), QuoteFileURL: "https://cdn/q.pdf"})
	assert.Equal(t, models.JobQuoteSubmitted, f.job.Status)
	assert.JSONEq(t, `{"amount": 500}`, string(f.job.QuoteDetails))
	assert.Equal(t, "https://cdn/q.pdf", f.job.QuoteFileURL)

	amount, ok := f.job.QuoteAmount()
	assert.True(t, ok)
	assert.Equal(t, int64(500), amount)
}

func TestQuoteDecision(t *testing.T) {
	t.Run("approve", func(t *testing.T) {
		f := newFixture(RejectRelease)
		f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})
		f.apply(t, f.craftsman, EventSubmitQuote, Input{QuoteDetails: datatypes.JSON(`{"amount":500}`)})

		assert.ErrorIs(t, f.m.Apply(f.job, f.otherClnt, EventApproveQuote, Input{}), ErrForbidden)
		assert.ErrorIs(t, f.m.Apply(f.job, f.admin, EventApproveQuote, Input{}), ErrForbidden)

		f.apply(t, f.client, EventApproveQuote, Input{})
		assert.Equal(t, models.JobQuoteApproved, f.job.Status)
		require.NotNil(t, f.job.QuoteApprovedByClient)
		assert.True(t, *f.job.QuoteApprovedByClient)

		f.apply(t, f.craftsman, EventStart, Input{})
		assert.Equal(t, models.JobInProgress, f.job.Status)
	})

	t.Run("reject releases the craftsman", func(t *testing.T) {
		f := newFixture(RejectRelease)
		f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})
		f.apply(t, f.craftsman, EventSubmitQuote, Input{QuoteDetails: datatypes.JSON(`{"amount":500}`)})

		f.apply(t, f.client, EventRejectQuote, Input{})
		assert.Equal(t, models.JobPending, f.job.Status)
		assert.Nil(t, f.job.CraftsmanID)
		require.NotNil(t, f.job.QuoteApprovedByClient)
		assert.False(t, *f.job.QuoteApprovedByClient)
	})

	t.Run("reject keeps the craftsman for a new quote", func(t *testing.T) {
		f := newFixture(RejectRequote)
		f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})
		f.apply(t, f.craftsman, EventSubmitQuote, Input{QuoteDetails: datatypes.JSON(`{"amount":500}`)})

		f.apply(t, f.client, EventRejectQuote, Input{})
		assert.Equal(t, models.JobAssigned, f.job.Status)
		require.NotNil(t, f.job.CraftsmanID)

		f.apply(t, f.craftsman, EventSubmitQuote, Input{QuoteDetails: datatypes.JSON(`{"amount":400}`)})
		assert.Equal(t, models.JobQuoteSubmitted, f.job.Status)
	})
}

func TestCancel(t *testing.T) {
	f := newFixture(RejectRelease)

	assert.ErrorIs(t, f.m.Apply(f.job, f.otherClnt, EventCancel, Input{}), ErrForbidden)
	assert.ErrorIs(t, f.m.Apply(f.job, f.craftsman, EventCancel, Input{}), ErrForbidden)

	f.apply(t, f.client, EventCancel, Input{})
	assert.Equal(t, models.JobCancelled, f.job.Status)

	err := f.m.Apply(f.job, f.admin, EventCancel, Input{})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	f := newFixture(RejectRelease)
	f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})
	f.apply(t, f.admin, EventMarkPaid, Input{})

	for _, ev := range []Event{EventCancel, EventMarkPaid} {
		assert.ErrorIs(t, f.m.Apply(f.job, f.admin, ev, Input{}), ErrConflict, ev)
	}
	assert.ErrorIs(t, f.m.Apply(f.job, f.craftsman, EventPay, Input{}), ErrConflict)
	assert.Equal(t, models.JobPaid, f.job.Status)
}

func TestPaymentRequiresCraftsman(t *testing.T) {
	f := newFixture(RejectRelease)

	assert.ErrorIs(t, f.m.Apply(f.job, f.admin, EventPay, Input{}), ErrValidation)
	assert.ErrorIs(t, f.m.Apply(f.job, f.admin, EventMarkPaid, Input{}), ErrValidation)
	// the role guard still comes first
	assert.ErrorIs(t, f.m.Check(f.job, f.client, EventPay), ErrForbidden)
	assert.Equal(t, models.JobPending, f.job.Status)

	f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})
	assert.ErrorIs(t, f.m.Check(f.job, f.client, EventPay), ErrForbidden)
	assert.NoError(t, f.m.Check(f.job, f.craftsman, EventPay))
	assert.NoError(t, f.m.Check(f.job, f.admin, EventPay))
}

func TestOutOfOrderEventsConflict(t *testing.T) {
	f := newFixture(RejectRelease)
	f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})

	assert.ErrorIs(t, f.m.Apply(f.job, f.craftsman, EventStart, Input{}), ErrConflict)
	assert.ErrorIs(t, f.m.Apply(f.job, f.craftsman, EventComplete, Input{}), ErrConflict)
	assert.ErrorIs(t, f.m.Apply(f.job, f.admin, EventAdminApprove, Input{}), ErrConflict)
}

func TestUnknownEvent(t *testing.T) {
	f := newFixture(RejectRelease)
	assert.ErrorIs(t, f.m.Apply(f.job, f.admin, Event("teleport"), Input{}), ErrValidation)
}

func TestAvailable(t *testing.T) {
	f := newFixture(RejectRelease)

	assert.ElementsMatch(t, []Event{EventAssign, EventCancel}, f.m.Available(f.job, f.admin))
	assert.ElementsMatch(t, []Event{EventCancel}, f.m.Available(f.job, f.client))

	f.apply(t, f.admin, EventAssign, Input{Craftsman: f.profile})
	assert.ElementsMatch(t, []Event{EventAccept, EventSubmitQuote, EventPay}, f.m.Available(f.job, f.craftsman))
	assert.Empty(t, f.m.Available(f.job, f.other))
}

func TestInvariantHoldsAcrossRandomWalk(t *testing.T) {
	f := newFixture(RejectRelease)
	actors := []Actor{f.admin, f.client, f.craftsman, f.other, f.otherClnt}
	events := []Event{
		EventAssign, EventAccept, EventStart, EventComplete, EventSubmitQuote, EventApproveQuote,
		EventRejectQuote, EventAdminApprove, EventCancel, EventMarkPaid, EventPay,
	}
	in := Input{Craftsman: f.profile, QuoteDetails: datatypes.JSON(`{"amount":10}`)}

	for i := 0; i < 500; i++ {
		a := actors[(i*7)%len(actors)]
		ev := events[(i*13)%len(events)]
		before := *f.job
		err := f.m.Apply(f.job, a, ev, in)
		if err != nil {
			assert.True(t, errors.Is(err, ErrForbidden) || errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation))
			assert.Equal(t, before.Status, f.job.Status)
		}
		require.NoError(t, CheckInvariant(f.job))
		if f.job.Status.Terminal() {
			f.job = &models.JobRequest{ID: uuid.New(), ClientID: f.client.UserID, Status: models.JobPending}
		}
	}
}

func TestExpectStatus(t *testing.T) {
	job := &models.JobRequest{Status: models.JobAssigned}

	assert.NoError(t, ExpectStatus(job, ""))
	assert.NoError(t, ExpectStatus(job, "Assigned"))
	assert.ErrorIs(t, ExpectStatus(job, "Pending"), ErrConflict)
	assert.ErrorIs(t, ExpectStatus(job, "foo"), ErrValidation)
	assert.ErrorIs(t, ExpectStatus(job, "assigned"), ErrValidation)
}

func TestParseQuoteRejectPolicy(t *testing.T) {
	assert.Equal(t, RejectRequote, ParseQuoteRejectPolicy("requote"))
	assert.Equal(t, RejectRelease, ParseQuoteRejectPolicy("release"))
	assert.Equal(t, RejectRelease, ParseQuoteRejectPolicy(""))
}
