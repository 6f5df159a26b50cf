// workers/question_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"couple-sync-system/models"
	"couple-sync-system/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuestionSyncClient pulls question-pack changes from the content service
// and keeps the local catalog current.
type QuestionSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewQuestionSyncClient(db *gorm.DB) *QuestionSyncClient {
	baseURL := os.Getenv("CONTENT_SERVICE_URL")
	token := os.Getenv("COUPLE_SERVICE_TOKEN")

	return &QuestionSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// remoteQuestion matches the content service's question JSON (also the
// format of question packs stored in R2).
type remoteQuestion struct {
	Text     string   `json:"text"`
	Category string   `json:"category"`
	Options  []string `json:"options"`
	ForPairs bool     `json:"for_pairs"`
}

func (c *QuestionSyncClient) GetChangedQuestions(ctx context.Context, since time.Time) ([]remoteQuestion, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/questions", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call content service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("content service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Questions []remoteQuestion `json:"questions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode content service response: %w", err)
	}

	return response.Questions, nil
}

// upsert writes a batch into the catalog. Texts are the dedup key; category
// tags are normalized to slugs on the way in.
func (c *QuestionSyncClient) upsert(questions []remoteQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	rows := make([]models.Question, len(questions))
	for i, q := range questions {
		rows[i] = models.Question{
			ID:       uuid.NewString(),
			Text:     q.Text,
			Options:  q.Options,
			Category: slug.Make(q.Category),
			ForPairs: q.ForPairs,
		}
	}
	return c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "text"}},
		DoUpdates: clause.AssignmentColumns([]string{"options", "category", "for_pairs", "updated_at"}),
	}).Create(&rows).Error
}

// BootstrapFromR2 loads the question packs named in QUESTION_PACK_KEYS
// (comma-separated object keys) from R2 object storage. Runs once at start;
// the content-service poll handles everything after.
func (c *QuestionSyncClient) BootstrapFromR2(ctx context.Context) error {
	keys := strings.TrimSpace(os.Getenv("QUESTION_PACK_KEYS"))
	if keys == "" {
		return nil
	}
	for _, key := range strings.Split(keys, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		raw, err := utils.DownloadFromR2(ctx, key)
		if err != nil {
			log.Printf("❌ Failed to download question pack %s: %v", key, err)
			continue
		}
		var pack struct {
			Questions []remoteQuestion `json:"questions"`
		}
		if err := json.Unmarshal(raw, &pack); err != nil {
			log.Printf("❌ Bad question pack %s: %v", key, err)
			continue
		}
		if err := c.upsert(pack.Questions); err != nil {
			log.Printf("❌ Failed to upsert question pack %s: %v", key, err)
			continue
		}
		log.Printf("📦 Question pack loaded from R2: %s (%d questions)", key, len(pack.Questions))
	}
	return nil
}

// PollQuestions keeps the catalog in sync with the content service.
func PollQuestions(ctx context.Context, client *QuestionSyncClient, pollInterval time.Duration) {
	if client.BaseURL == "" {
		log.Println("⚠️  CONTENT_SERVICE_URL not set — question polling disabled, catalog is seed + R2 packs only")
		return
	}
	log.Println("Starting question catalog polling…")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Question polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			questions, err := client.GetChangedQuestions(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling questions: %v", err)
				continue
			}
			if len(questions) == 0 {
				continue
			}

			if err := client.upsert(questions); err != nil {
				log.Printf("❌ Failed to upsert %d question(s): %v", len(questions), err)
				// Do NOT advance lastSyncTime on failure — retry same window next tick
				continue
			}

			lastSyncTime = logTime
			log.Printf("✅ Upserted %d question(s) into catalog.", len(questions))
		}
	}
}
