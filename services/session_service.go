package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"couple-sync-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DateLayout is the calendar-day key for sessions and streaks.
const DateLayout = "2006-01-02"

// SessionService owns the daily game state machine:
//
//	none → awaiting_first → awaiting_second → completed
//
// Every transition is a conditional write against the database, so the
// engine is safe under arbitrary interleaving of both partners' clients —
// no in-process locks, including both answering within the same millisecond.
type SessionService struct {
	DB           *gorm.DB
	Questions    *QuestionService
	Stats        *StatsService
	Achievements *AchievementService

	// Optional collaborators — nil-safe, never gate correctness
	Presence *PresenceService
	Notify   *NotifyClient

	dayLoc *time.Location
}

func NewSessionService(db *gorm.DB, questions *QuestionService, stats *StatsService, achievements *AchievementService) *SessionService {
	loc := time.UTC
	if tz := os.Getenv("DAY_BOUNDARY_TZ"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			log.Printf("⚠️  Invalid DAY_BOUNDARY_TZ=%q, using UTC", tz)
		} else {
			loc = parsed
		}
	}
	return &SessionService{
		DB:           db,
		Questions:    questions,
		Stats:        stats,
		Achievements: achievements,
		dayLoc:       loc,
	}
}

// Today returns the current session date under the day-boundary policy
// (default UTC midnight).
func (s *SessionService) Today() string {
	return time.Now().In(s.dayLoc).Format(DateLayout)
}

// SessionView is what the presentation layer gets back. The partner's answer
// value is only revealed once the session is completed.
type SessionView struct {
	Session         *models.GameSession      `json:"session"`
	Question        *models.Question         `json:"question"`
	YourAnswer      *int                     `json:"your_answer,omitempty"`
	PartnerAnswer   *int                     `json:"partner_answer,omitempty"`
	PartnerAnswered bool                     `json:"partner_answered"`
	AlreadyPlayed   bool                     `json:"already_played"`
	NewlyUnlocked   []models.AchievementType `json:"newly_unlocked,omitempty"`
}

// GetOrCreateTodaySession returns today's session for the user's couple,
// creating it lazily on first access. Idempotent under concurrent calls from
// both partners: the (couple_id, date) unique index arbitrates, and the
// insert loser re-reads the winning row instead of erroring.
func (s *SessionService) GetOrCreateTodaySession(userID string) (*SessionView, error) {
	couple, err := s.activeCoupleFor(userID)
	if err != nil {
		return nil, err
	}
	today := s.Today()

	session, err := s.readSession(couple.ID, today)
	if errors.Is(err, ErrNotFound) {
		question, perr := s.Questions.PickRandomQuestion(couple.PreferredCategories)
		if perr != nil {
			return nil, perr
		}
		candidate := models.GameSession{
			ID:         uuid.NewString(),
			CoupleID:   couple.ID,
			Date:       today,
			QuestionID: question.ID,
			Status:     models.SessionAwaitingFirst,
		}
		cerr := s.DB.Create(&candidate).Error
		switch {
		case cerr == nil:
			session = &candidate
		case errors.Is(cerr, gorm.ErrDuplicatedKey):
			// the other partner won the insert race — use their row
			session, err = s.readSession(couple.ID, today)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: create session: %v", ErrUnavailable, cerr)
		}
	} else if err != nil {
		return nil, err
	}

	// A poller may be the first to observe "both answered" — finish the
	// transition here rather than leaving it to the submitter.
	var unlocked []models.AchievementType
	if session.BothAnswered() && session.Status != models.SessionCompleted {
		if session, unlocked, err = s.completeSession(session.ID, userID); err != nil {
			return nil, err
		}
	}

	return s.buildView(couple, session, userID, unlocked)
}

// SubmitAnswer records the caller's answer slot and, when it observes both
// slots filled, performs the completed transition exactly once.
//
// Duplicate submissions of the same value are a no-op success (client
// retries); a different value is rejected — slots are write-once.
func (s *SessionService) SubmitAnswer(sessionID, userID string, optionIndex int) (*SessionView, error) {
	session, err := s.readSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	couple, err := s.coupleByID(session.CoupleID)
	if err != nil {
		return nil, err
	}
	if !couple.HasMember(userID) {
		return nil, fmt.Errorf("%w: user is not part of this couple", ErrInvalidOperation)
	}

	if session.Status == models.SessionCompleted {
		// already played — a read, not an error
		return s.buildView(couple, session, userID, nil)
	}

	question, err := s.Questions.GetQuestion(session.QuestionID)
	if err != nil {
		return nil, err
	}
	if optionIndex < 0 || optionIndex >= len(question.Options) {
		return nil, fmt.Errorf("%w: option index %d out of range", ErrInvalidOperation, optionIndex)
	}

	slot := "answer_b"
	if userID == couple.PartnerA {
		slot = "answer_a"
	}

	// Conditional write: set my slot only while it is still empty. Also
	// advances awaiting_first → awaiting_second for the first writer; the
	// status is corrected again below if we complete.
	res := s.DB.Model(&models.GameSession{}).
		Where("id = ? AND "+slot+" IS NULL AND status <> ?", session.ID, models.SessionCompleted).
		Updates(map[string]interface{}{
			slot:     optionIndex,
			"status": models.SessionAwaitingSecond,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("%w: submit answer: %v", ErrUnavailable, res.Error)
	}

	session, err = s.readSessionByID(session.ID)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		stored := session.AnswerFor(couple, userID)
		switch {
		case session.Status == models.SessionCompleted && stored != nil && *stored == optionIndex:
			// duplicate retry raced with completion — fall through to the view
		case stored != nil && *stored == optionIndex:
			// duplicate request, tolerate the retry as a no-op
		case stored != nil:
			return nil, fmt.Errorf("%w: answer already submitted", ErrInvalidOperation)
		default:
			return nil, fmt.Errorf("%w: answer slot contended", ErrConflict)
		}
	}

	var unlocked []models.AchievementType
	if session.BothAnswered() && session.Status != models.SessionCompleted {
		if session, unlocked, err = s.completeSession(session.ID, userID); err != nil {
			return nil, err
		}
	} else if session.Status != models.SessionCompleted {
		s.nudgePartner(couple, userID, question)
	}

	return s.buildView(couple, session, userID, unlocked)
}

// resolveMatch is the whole match resolver: strict equality of option
// indices, no fuzzy matching, no partial credit. Option lists are immutable
// once a session references a question, so indices are comparable.
func resolveMatch(answerA, answerB int) bool {
	return answerA == answerB
}

// completeSession performs the awaiting_second → completed transition
// exactly once (CAS on status) and runs the stats aggregator and achievement
// engine inside the same transaction. A concurrent observer that loses the
// CAS treats it as a read: the row is reloaded, nothing double-counts.
func (s *SessionService) completeSession(sessionID, viewerID string) (*models.GameSession, []models.AchievementType, error) {
	var viewerUnlocks []models.AchievementType
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var session models.GameSession
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			return fmt.Errorf("%w: reload session: %v", ErrUnavailable, err)
		}
		if !session.BothAnswered() || session.Status == models.SessionCompleted {
			return nil
		}

		isMatch := resolveMatch(*session.AnswerA, *session.AnswerB)
		now := time.Now()
		res := tx.Model(&models.GameSession{}).
			Where("id = ? AND status <> ?", session.ID, models.SessionCompleted).
			Updates(map[string]interface{}{
				"status":       models.SessionCompleted,
				"is_match":     isMatch,
				"completed_at": &now,
			})
		if res.Error != nil {
			return fmt.Errorf("%w: complete session: %v", ErrUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			// the other observer applied the transition first
			return nil
		}

		stats, streak, err := s.Stats.OnSessionCompleted(tx, session.CoupleID, isMatch, session.Date)
		if err != nil {
			return err
		}

		var couple models.Couple
		if err := tx.First(&couple, "id = ?", session.CoupleID).Error; err != nil {
			return fmt.Errorf("%w: reload couple: %v", ErrUnavailable, err)
		}
		snapshot := models.StatsSnapshot{
			CurrentStreak: streak.CurrentStreak,
			TotalGames:    stats.TotalGames,
			TotalMatches:  stats.TotalMatches,
			PerfectDay:    isMatch,
		}
		members := []string{couple.PartnerA}
		if couple.PartnerB != nil {
			members = append(members, *couple.PartnerB)
		}
		for _, member := range members {
			unlocks, err := s.Achievements.CheckAndUnlockTx(tx, member, snapshot)
			if err != nil {
				return err
			}
			if member == viewerID {
				viewerUnlocks = unlocks
			}
		}

		log.Printf("🎯 Session completed: %s couple=%s match=%t games=%d score=%d",
			session.ID, session.CoupleID, isMatch, stats.TotalGames, stats.SyncScore)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	session, rerr := s.readSessionByID(sessionID)
	if rerr != nil {
		return nil, nil, rerr
	}
	if session.Status == models.SessionCompleted && s.Presence != nil {
		s.Presence.PublishSessionCompleted(session)
	}
	return session, viewerUnlocks, nil
}

// nudgePartner fires a best-effort push through the notification service
// when the waiting partner looks offline. Presence is a heuristic here,
// never a correctness input.
func (s *SessionService) nudgePartner(couple *models.Couple, answeredBy string, question *models.Question) {
	if s.Notify == nil {
		return
	}
	partner := couple.OtherPartner(answeredBy)
	if partner == nil {
		return
	}
	if s.Presence != nil {
		state := s.Presence.PartnerPresence(couple.ID, answeredBy)
		if state != nil && state.Status != models.PresenceOffline {
			return // they're online, the SSE stream will tell them
		}
	}
	go func(userID, text string) {
		if err := s.Notify.SendPartnerAnswered(userID, text); err != nil {
			log.Printf("⚠️  Partner nudge failed for %s: %v", userID, err)
		}
	}(*partner, question.Text)
}

func (s *SessionService) buildView(couple *models.Couple, session *models.GameSession, userID string, unlocked []models.AchievementType) (*SessionView, error) {
	question, err := s.Questions.GetQuestion(session.QuestionID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{
		Session:       session,
		Question:      question,
		YourAnswer:    session.AnswerFor(couple, userID),
		AlreadyPlayed: session.Status == models.SessionCompleted,
		NewlyUnlocked: unlocked,
	}
	partner := couple.OtherPartner(userID)
	if partner != nil {
		partnerAnswer := session.AnswerFor(couple, *partner)
		view.PartnerAnswered = partnerAnswer != nil
		if session.Status == models.SessionCompleted {
			view.PartnerAnswer = partnerAnswer
		}
	}
	return view, nil
}

func (s *SessionService) activeCoupleFor(userID string) (*models.Couple, error) {
	var couple models.Couple
	err := s.DB.Where(
		"(partner_a = ? OR partner_b = ?) AND status = ?",
		userID, userID, models.CoupleStatusActive,
	).First(&couple).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no active couple", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch couple: %v", ErrUnavailable, err)
	}
	return &couple, nil
}

func (s *SessionService) coupleByID(id string) (*models.Couple, error) {
	var couple models.Couple
	err := s.DB.First(&couple, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: couple", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch couple: %v", ErrUnavailable, err)
	}
	return &couple, nil
}

func (s *SessionService) readSession(coupleID, date string) (*models.GameSession, error) {
	var session models.GameSession
	err := s.DB.Where("couple_id = ? AND date = ?", coupleID, date).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch session: %v", ErrUnavailable, err)
	}
	return &session, nil
}

func (s *SessionService) readSessionByID(id string) (*models.GameSession, error) {
	var session models.GameSession
	err := s.DB.First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch session: %v", ErrUnavailable, err)
	}
	return &session, nil
}
