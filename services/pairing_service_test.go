package services

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"couple-sync-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvite_CodeShape(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	couple, err := pairing.CreateInvite("alex")
	require.NoError(t, err)

	require.NotNil(t, couple.InviteCode)
	code := *couple.InviteCode
	assert.Len(t, code, 8)
	for _, ch := range code {
		assert.Contains(t, inviteCodeAlphabet, string(ch), "code %q contains glyph outside alphabet", code)
	}

	assert.Equal(t, models.CoupleStatusPending, couple.Status)
	assert.Equal(t, "alex", couple.PartnerA)
	assert.Nil(t, couple.PartnerB)
	assert.NotEmpty(t, couple.PreferredCategories)

	require.NotNil(t, couple.InviteCodeExpiresAt)
	wantExpiry := time.Now().AddDate(0, 0, 7)
	assert.WithinDuration(t, wantExpiry, *couple.InviteCodeExpiresAt, 5*time.Second)
}

func TestCreateInvite_RejectsWhenAlreadyCoupled(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	_, err := pairing.CreateInvite("alex")
	require.NoError(t, err)

	_, err = pairing.CreateInvite("alex")
	require.ErrorIs(t, err, ErrInvalidOperation)

	// the partner of an active couple is equally blocked
	couple := pairCouple(t, pairing, "sam", "robin")
	_, err = pairing.CreateInvite(*couple.PartnerB)
	require.ErrorIs(t, err, ErrInvalidOperation)
}

func TestCreateInvite_ReplacesExpiredPendingInvite(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	stale, err := pairing.CreateInvite("alex")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(stale).Update("invite_code_expires_at", &past).Error)

	fresh, err := pairing.CreateInvite("alex")
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, fresh.ID)
	assert.NotEqual(t, *stale.InviteCode, *fresh.InviteCode)

	var old models.Couple
	require.NoError(t, db.First(&old, "id = ?", stale.ID).Error)
	assert.Equal(t, models.CoupleStatusDissolved, old.Status)
	assert.Nil(t, old.InviteCode)
}

func TestRedeemInvite_PairsAndProvisions(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	couple := pairCouple(t, pairing, "alex", "sam")

	assert.Equal(t, "alex", couple.PartnerA)
	require.NotNil(t, couple.PartnerB)
	assert.Equal(t, "sam", *couple.PartnerB)
	assert.Nil(t, couple.InviteCode, "code must be cleared on redemption")
	assert.NotNil(t, couple.PairedAt)

	var stats models.CoupleStats
	require.NoError(t, db.First(&stats, "couple_id = ?", couple.ID).Error)
	assert.Zero(t, stats.TotalGames)
	assert.Zero(t, stats.SyncScore)

	var streak models.StreakRecord
	require.NoError(t, db.First(&streak, "couple_id = ?", couple.ID).Error)
	assert.Zero(t, streak.CurrentStreak)
	assert.Empty(t, streak.LastPlayedDate)
}

func TestRedeemInvite_NormalizesInput(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	invite, err := pairing.CreateInvite("alex")
	require.NoError(t, err)

	sloppy := "  " + strings.ToLower(*invite.InviteCode) + " "
	couple, err := pairing.RedeemInvite("sam", sloppy, false)
	require.NoError(t, err)
	assert.Equal(t, models.CoupleStatusActive, couple.Status)
}

func TestRedeemInvite_Rejections(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	invite, err := pairing.CreateInvite("alex")
	require.NoError(t, err)

	t.Run("malformed length", func(t *testing.T) {
		_, err := pairing.RedeemInvite("sam", "ABC", false)
		require.ErrorIs(t, err, ErrInvalidOperation)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := pairing.RedeemInvite("sam", "ZZZZZZZZ", false)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("self join", func(t *testing.T) {
		_, err := pairing.RedeemInvite("alex", *invite.InviteCode, false)
		require.ErrorIs(t, err, ErrInvalidOperation)
	})

	t.Run("expired", func(t *testing.T) {
		past := time.Now().Add(-time.Minute)
		require.NoError(t, db.Model(invite).Update("invite_code_expires_at", &past).Error)
		_, err := pairing.RedeemInvite("sam", *invite.InviteCode, false)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRedeemInvite_ExpiryBoundary(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	t.Run("one second before the deadline still redeems", func(t *testing.T) {
		invite, err := pairing.CreateInvite("alex")
		require.NoError(t, err)
		almost := time.Now().Add(time.Second)
		require.NoError(t, db.Model(invite).Update("invite_code_expires_at", &almost).Error)

		_, err = pairing.RedeemInvite("sam", *invite.InviteCode, false)
		require.NoError(t, err)
	})

	t.Run("one second past the deadline is gone", func(t *testing.T) {
		invite, err := pairing.CreateInvite("robin")
		require.NoError(t, err)
		justPast := time.Now().Add(-time.Second)
		require.NoError(t, db.Model(invite).Update("invite_code_expires_at", &justPast).Error)

		_, err = pairing.RedeemInvite("jordan", *invite.InviteCode, false)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRedeemInvite_SelfJoinOverride(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	invite, err := pairing.CreateInvite("alex")
	require.NoError(t, err)

	couple, err := pairing.RedeemInvite("alex", *invite.InviteCode, true)
	require.NoError(t, err)
	require.NotNil(t, couple.PartnerB)
	assert.Equal(t, "alex", *couple.PartnerB)
}

func TestRedeemInvite_SingleUse(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	invite, err := pairing.CreateInvite("alex")
	require.NoError(t, err)
	code := *invite.InviteCode

	_, err = pairing.RedeemInvite("sam", code, false)
	require.NoError(t, err)

	// the code is gone from the couple row, so the second redeemer sees
	// a dead code rather than a half-joined couple
	_, err = pairing.RedeemInvite("robin", code, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemInvite_ConcurrentRedeemersOneWinner(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	invite, err := pairing.CreateInvite("alex")
	require.NoError(t, err)
	code := *invite.InviteCode

	redeemers := []string{"sam", "robin", "jordan", "casey"}
	errs := make([]error, len(redeemers))
	var wg sync.WaitGroup
	for i, who := range redeemers {
		wg.Add(1)
		go func(i int, who string) {
			defer wg.Done()
			_, errs[i] = pairing.RedeemInvite(who, code, false)
		}(i, who)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			losable := errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound)
			assert.True(t, losable, "loser got unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one redeemer may win the code")

	var couple models.Couple
	require.NoError(t, db.First(&couple, "id = ?", invite.ID).Error)
	assert.Equal(t, models.CoupleStatusActive, couple.Status)
	require.NotNil(t, couple.PartnerB)
	assert.Contains(t, redeemers, *couple.PartnerB)
}

func TestDissolveCouple(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	couple := pairCouple(t, pairing, "alex", "sam")
	require.NoError(t, pairing.DissolveCouple("sam"))

	var stored models.Couple
	require.NoError(t, db.First(&stored, "id = ?", couple.ID).Error)
	assert.Equal(t, models.CoupleStatusDissolved, stored.Status)

	_, err := pairing.GetCoupleForUser("alex")
	require.ErrorIs(t, err, ErrNotFound)

	// both are free to pair again
	_, err = pairing.CreateInvite("alex")
	require.NoError(t, err)
}

func TestPartnerProfile_ServedFromMirror(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	displayName := "Sam R."
	avatar := "https://cdn.example.com/sam.png"
	require.NoError(t, db.Create(&models.PairUser{
		ID:                "mirror-1",
		ExternalUserID:    "sam",
		Username:          "sam_r",
		DisplayName:       &displayName,
		ProfilePictureURL: &avatar,
	}).Error)

	couple := pairCouple(t, pairing, "alex", "sam")

	profile, err := pairing.PartnerProfile(couple, "alex")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "sam_r", profile.Username)
	require.NotNil(t, profile.DisplayName)
	assert.Equal(t, "Sam R.", *profile.DisplayName)
	require.NotNil(t, profile.ProfilePictureURL)
	assert.Equal(t, avatar, *profile.ProfilePictureURL)
}

func TestPartnerProfile_NilWhenUnmirrored(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	couple := pairCouple(t, pairing, "alex", "sam")

	// the sync worker has not seen this partner yet — a gap, not an error
	profile, err := pairing.PartnerProfile(couple, "alex")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestPartnerProfile_NilWhilePending(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	invite, err := pairing.CreateInvite("alex")
	require.NoError(t, err)

	profile, err := pairing.PartnerProfile(invite, "alex")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestUpdatePreferredCategories(t *testing.T) {
	db := newTestDB(t)
	pairing := NewPairingService(db)

	pairCouple(t, pairing, "alex", "sam")

	couple, err := pairing.UpdatePreferredCategories("alex", []string{"Would You Rather", "would-you-rather", "Future Plans"})
	require.NoError(t, err)
	assert.Equal(t, []string{"would-you-rather", "future-plans"}, couple.PreferredCategories)

	_, err = pairing.UpdatePreferredCategories("alex", []string{"", "  "})
	require.ErrorIs(t, err, ErrInvalidOperation)
}
