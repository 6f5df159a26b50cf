package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"couple-sync-system/utils"
)

// NotifyClient posts best-effort push requests to the external notification
// service. Delivery (push/email, templates) is entirely that service's
// problem — the engine only decides when a nudge is worth sending.
type NotifyClient struct {
	BaseURL string
	Token   string
}

func NewNotifyClient(baseURL, token string) *NotifyClient {
	return &NotifyClient{BaseURL: baseURL, Token: token}
}

// SendPartnerAnswered nudges the still-waiting partner after the first
// answer lands while they look offline.
func (c *NotifyClient) SendPartnerAnswered(userID, questionText string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":  userID,
		"template": "partner_answered",
		"data":     map[string]string{"question": questionText},
	})

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/v1/notifications", c.BaseURL), bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := utils.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification service returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
