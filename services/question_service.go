package services

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"couple-sync-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuestionService owns the question catalog the session engine draws from.
// The catalog is append-mostly: the starter pack is seeded at boot and the
// question sync worker upserts packs from the content service / R2.
type QuestionService struct {
	DB *gorm.DB
}

func NewQuestionService(db *gorm.DB) *QuestionService {
	return &QuestionService{DB: db}
}

var starterCategories = []string{
	"Getting to Know You",
	"Favorites",
	"Memories",
	"Would You Rather",
	"Future Plans",
}

// DefaultCategories returns the slugged starter category tags. New couples
// start subscribed to all of them.
func DefaultCategories() []string {
	tags := make([]string, len(starterCategories))
	for i, c := range starterCategories {
		tags[i] = slug.Make(c)
	}
	return tags
}

// CategoryDisplayName turns a category slug back into a UI label.
func CategoryDisplayName(tag string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(tag, "-", " "))
}

type starterQuestion struct {
	Text     string
	Category string // display name, slugged on seed
	Options  []string
}

var starterQuestions = []starterQuestion{
	{"What would your partner pick for a last meal?", "Favorites", []string{"Pizza", "Sushi", "Steak", "Tacos"}},
	{"Which chore does your partner secretly hate the most?", "Getting to Know You", []string{"Dishes", "Laundry", "Vacuuming", "Taking out the trash"}},
	{"Where was your first date?", "Memories", []string{"Restaurant", "Cinema", "Park", "Someone's place"}},
	{"Would your partner rather explore the ocean or space?", "Would You Rather", []string{"Ocean", "Space"}},
	{"How many kids does your partner imagine having?", "Future Plans", []string{"None", "One", "Two", "Three or more"}},
	{"What's your partner's ideal Friday night?", "Favorites", []string{"Night out", "Movie at home", "Dinner with friends", "Early sleep"}},
	{"Which season does your partner love most?", "Favorites", []string{"Spring", "Summer", "Autumn", "Winter"}},
	{"Would your partner rather be invisible or read minds?", "Would You Rather", []string{"Invisible", "Read minds"}},
	{"What did your partner first notice about you?", "Memories", []string{"Smile", "Eyes", "Humor", "Style"}},
	{"Where does your partner dream of retiring?", "Future Plans", []string{"Beach town", "Mountains", "Big city", "Countryside"}},
	{"What superpower would your partner choose?", "Getting to Know You", []string{"Flight", "Teleportation", "Time travel", "Super strength"}},
	{"Would your partner rather give up coffee or dessert?", "Would You Rather", []string{"Coffee", "Dessert"}},
}

// SeedStarterQuestions loads the built-in pack, skipping texts already present.
func (s *QuestionService) SeedStarterQuestions() error {
	rows := make([]models.Question, len(starterQuestions))
	for i, q := range starterQuestions {
		rows[i] = models.Question{
			ID:       uuid.NewString(),
			Text:     q.Text,
			Options:  q.Options,
			Category: slug.Make(q.Category),
			ForPairs: true,
		}
	}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "text"}},
		DoNothing: true,
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("seed starter questions: %w", err)
	}
	log.Printf("📚 Question catalog seeded (%d starter questions)", len(rows))
	return nil
}

// PickRandomQuestion draws uniformly from the for-pairs pool filtered to the
// given category tags, falling back to the whole for-pairs pool when the
// filter matches nothing.
func (s *QuestionService) PickRandomQuestion(categories []string) (*models.Question, error) {
	q, err := s.pickFrom(categories)
	if errors.Is(err, ErrNotFound) && len(categories) > 0 {
		return s.pickFrom(nil)
	}
	return q, err
}

func (s *QuestionService) pickFrom(categories []string) (*models.Question, error) {
	query := s.DB.Model(&models.Question{}).Where("for_pairs = ?", true)
	if len(categories) > 0 {
		query = query.Where("category IN ?", categories)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, fmt.Errorf("%w: count questions: %v", ErrUnavailable, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no eligible questions", ErrNotFound)
	}

	var question models.Question
	if err := query.Offset(rand.Intn(int(count))).Limit(1).Find(&question).Error; err != nil {
		return nil, fmt.Errorf("%w: pick question: %v", ErrUnavailable, err)
	}
	if question.ID == "" {
		return nil, fmt.Errorf("%w: no eligible questions", ErrNotFound)
	}
	return &question, nil
}

// GetQuestion fetches one question by id.
func (s *QuestionService) GetQuestion(id string) (*models.Question, error) {
	var question models.Question
	err := s.DB.First(&question, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: question", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch question: %v", ErrUnavailable, err)
	}
	return &question, nil
}
