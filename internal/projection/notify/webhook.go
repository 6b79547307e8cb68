package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"solarmine-planner/internal/projection/application"
)

// WebhookPublisher posts run finished events to a chat-style webhook.
type WebhookPublisher struct {
	url        string
	client     *http.Client
	tpl        *Template
	failedOnly bool
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
	RunID   string      `json:"run_id"`
	State   string      `json:"state"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookPublisher constructs a publisher. With failedOnly set, completed
// runs are not posted.
func NewWebhookPublisher(url string, tpl *Template, failedOnly bool) (*WebhookPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("webhook publisher: empty url")
	}
	if tpl == nil {
		var err error
		tpl, err = NewTemplate("")
		if err != nil {
			return nil, err
		}
	}
	return &WebhookPublisher{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		tpl:        tpl,
		failedOnly: failedOnly,
	}, nil
}

// PublishRunFinished sends the rendered event.
func (w *WebhookPublisher) PublishRunFinished(ctx context.Context, event application.RunFinished) error {
	if w == nil {
		return errors.New("webhook publisher: nil publisher")
	}
	run := event.Run
	if w.failedOnly && run.ErrorKind == "" {
		return nil
	}
	content, err := w.tpl.Render(templateData(event))
	if err != nil {
		return err
	}
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: strings.TrimSpace(content)},
		RunID:   run.ID,
		State:   string(run.State),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook publisher: status %d", resp.StatusCode)
	}
	return nil
}

func templateData(event application.RunFinished) TemplateData {
	run := event.Run
	data := TemplateData{
		State:        string(run.State),
		RunID:        run.ID,
		ConfigID:     run.SystemConfigID,
		ScenarioID:   run.ScenarioID,
		StartDate:    run.StartDate.Format("2006-01-02"),
		EndDate:      run.EndDate.Format("2006-01-02"),
		DaysRecorded: run.DaysRecorded,
		ErrorKind:    run.ErrorKind,
		Component:    run.FailedComponent,
		Error:        run.Error,
		FailedDate:   "-",
	}
	if run.FailedDate != nil {
		data.FailedDate = run.FailedDate.Format("2006-01-02")
	}
	if s := run.Summary; s != nil {
		data.NPV = fmt.Sprintf("%.2f USD", s.NPVUSD)
		data.IRR = "n/a"
		if s.IRRPercent != nil {
			data.IRR = fmt.Sprintf("%.2f%%", *s.IRRPercent)
		}
		data.Payback = "not reached"
		if s.PaybackMonths != nil {
			data.Payback = fmt.Sprintf("%.1f months", *s.PaybackMonths)
		}
	}
	return data
}
