package claim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/store/memory"
)

var start = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	clock   *clock.FakeClock
	service *Service
	ticket  models.Ticket
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.NewStore()
	clk := clock.Fake(start)
	venue := st.AddVenue("Acme Steakhouse", "acme", "A")
	ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{VenueID: venue.ID, CreatedAt: start})
	require.NoError(t, err)
	require.NoError(t, st.SetClaimCode(ticket.ID, "482913", start.Add(store.DefaultClaimTTL)))
	ticket, err = st.UpdateCarDetails(ctx, store.UpdateCarInput{TicketID: ticket.ID, CarNumber: "7ABC123"})
	require.NoError(t, err)

	return fixture{
		store:   st,
		clock:   clk,
		service: NewService(st, Options{Clock: clk}),
		ticket:  ticket,
	}
}

func TestConfirmBindsPhoneAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Confirm(ctx, "acme", "+1 (555) 123-4567", "482913")
	require.NoError(t, err)
	assert.Equal(t, "/t/"+f.ticket.Token, first.GuestPath)
	assert.Equal(t, f.ticket.Token, first.TicketToken)
	assert.Equal(t, "••••C123", first.MaskedVehicle)

	second, err := f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ticket, err := f.store.GetTicket(ctx, f.ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "***-***-4567", ticket.ClaimedPhoneMasked)
}

func TestConfirmOtherPhoneIsInvalidCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	require.NoError(t, err)

	_, err = f.service.Confirm(ctx, "acme", "+15559999999", "482913")
	assert.ErrorIs(t, err, store.ErrInvalidCode)
}

func TestConfirmRetryAfterCodeReissued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	require.NoError(t, err)

	venue, err := f.store.GetVenueBySlug(ctx, "acme")
	require.NoError(t, err)
	next, err := f.store.CreateTicket(ctx, store.CreateTicketInput{VenueID: venue.ID, CreatedAt: start})
	require.NoError(t, err)
	require.NoError(t, f.store.SetClaimCode(next.ID, "482913", start.Add(store.DefaultClaimTTL)))

	retry, err := f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	require.NoError(t, err)
	assert.Equal(t, first, retry)

	unclaimed, err := f.store.GetTicket(ctx, next.ID)
	require.NoError(t, err)
	assert.Nil(t, unclaimed.ClaimedAt)

	other, err := f.service.Confirm(ctx, "acme", "+15559999999", "482913")
	require.NoError(t, err)
	assert.Equal(t, "/t/"+next.Token, other.GuestPath)
}

func TestConfirmExpiredCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Advance(store.DefaultClaimTTL + time.Second)
	_, err := f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	assert.ErrorIs(t, err, store.ErrCodeExpired)

	_, err = f.service.Confirm(ctx, "acme", "+15551234567", "000000")
	assert.ErrorIs(t, err, store.ErrInvalidCode)
}

func TestConfirmSamePhoneAfterExpiryStillSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	require.NoError(t, err)

	f.clock.Advance(store.DefaultClaimTTL + time.Hour)
	_, err = f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	assert.NoError(t, err)
}

func TestConfirmRateLimitsRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var errs []error
	for i := 0; i < 7; i++ {
		_, err := f.service.Confirm(ctx, "acme", "+15551234567", "111111")
		errs = append(errs, err)
	}
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, errs[i], store.ErrInvalidCode, "attempt %d", i+1)
	}
	assert.ErrorIs(t, errs[5], store.ErrRateLimited)
	assert.ErrorIs(t, errs[6], store.ErrRateLimited)

	// Even the right code is refused while limited.
	_, err := f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	assert.ErrorIs(t, err, store.ErrRateLimited)

	f.clock.Advance(DefaultFailureWindow + time.Second)
	_, err = f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	assert.NoError(t, err)
}

func TestConfirmSuccessClearsPhoneFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := f.service.Confirm(ctx, "acme", "+15551234567", "111111")
		require.ErrorIs(t, err, store.ErrInvalidCode)
	}
	_, err := f.service.Confirm(ctx, "acme", "+15551234567", "482913")
	require.NoError(t, err)

	exceeded, err := f.service.failures.Exceeded(ctx, phoneKey("+15551234567"), 1)
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestConfirmVenueLimitSpansPhones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.service.limits.VenueMaxFailures = 3

	for i, phone := range []string{"+15550000001", "+15550000002", "+15550000003"} {
		_, err := f.service.Confirm(ctx, "acme", phone, "111111")
		require.ErrorIs(t, err, store.ErrInvalidCode, "attempt %d", i)
	}
	_, err := f.service.Confirm(ctx, "acme", "+15550000004", "482913")
	assert.ErrorIs(t, err, store.ErrRateLimited)
}

func TestConfirmRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Confirm(ctx, "nowhere", "+15551234567", "482913")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.service.Confirm(ctx, "acme", "12345", "482913")
	assert.ErrorIs(t, err, store.ErrInvalidPhone)

	_, err = f.service.Confirm(ctx, "acme", "+15551234567", "48291")
	assert.ErrorIs(t, err, store.ErrInvalidCode)
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.service.Start(ctx, "acme", "+15551234567"))
	assert.ErrorIs(t, f.service.Start(ctx, "nowhere", "+15551234567"), store.ErrNotFound)
	assert.ErrorIs(t, f.service.Start(ctx, "acme", "abc"), store.ErrInvalidPhone)
}

func TestAllowClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < DefaultLimits().IPMaxAttempts; i++ {
		require.NoError(t, f.service.AllowClient(ctx, "10.0.0.1"))
	}
	assert.ErrorIs(t, f.service.AllowClient(ctx, "10.0.0.1"), store.ErrRateLimited)
	assert.NoError(t, f.service.AllowClient(ctx, "10.0.0.2"))

	f.clock.Advance(DefaultIPWindow + time.Second)
	assert.NoError(t, f.service.AllowClient(ctx, "10.0.0.1"))
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]struct {
		want    string
		wantErr bool
	}{
		"+1 (555) 123-4567": {want: "+15551234567"},
		"555.123.4567":      {want: "5551234567"},
		"1234567":           {wantErr: true},
		"12345678901234567": {wantErr: true},
		"555-CALL-NOW":      {wantErr: true},
		"55+51234567":       {wantErr: true},
	}
	for raw, tc := range cases {
		got, err := NormalizePhone(raw)
		if tc.wantErr {
			assert.ErrorIs(t, err, store.ErrInvalidPhone, raw)
			continue
		}
		assert.NoError(t, err, raw)
		assert.Equal(t, tc.want, got, raw)
	}
}
