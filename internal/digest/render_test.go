// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/models"
)

func TestRenderGroupsAndOrders(t *testing.T) {
	d := &models.Digest{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Type:    models.FrequencyDaily,
		Items: []models.NotificationItem{
			{Event: models.EventKudosReceived, Priority: models.PriorityLow, Title: "Kudos from alice"},
			{Event: models.EventCommentReceived, Priority: models.PriorityHigh, Title: "New comment", Description: "great chapter", ActionURL: "https://example.com/c/1"},
			{Event: models.EventKudosReceived, Priority: models.PriorityLow, Title: "Kudos from bob"},
		},
		CreatedAt: time.Now().UTC(),
	}

	subject, text, html := render(d)

	if subject != "Your daily digest: 3 notifications" {
		t.Errorf("subject = %q", subject)
	}

	// Comments section comes before kudos.
	commentsIdx := strings.Index(text, "Comments")
	kudosIdx := strings.Index(text, "Kudos")
	if commentsIdx == -1 || kudosIdx == -1 || commentsIdx > kudosIdx {
		t.Errorf("section order wrong:\n%s", text)
	}

	for _, want := range []string{
		"New comment: great chapter",
		"https://example.com/c/1",
		"Kudos from alice",
		"Kudos from bob",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q", want)
		}
	}

	for _, want := range []string{
		"<h2>Comments</h2>",
		`<a href="https://example.com/c/1">`,
		"<h2>Kudos</h2>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestRenderSingularSubject(t *testing.T) {
	d := &models.Digest{
		Type:  models.FrequencyWeekly,
		Items: []models.NotificationItem{{Event: models.EventNewWork, Title: "New work"}},
	}
	subject, _, _ := render(d)
	if subject != "Your weekly digest: 1 notification" {
		t.Errorf("subject = %q", subject)
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	d := &models.Digest{
		Type:  models.FrequencyDaily,
		Items: []models.NotificationItem{{Event: models.EventCommentReceived, Title: "<script>alert(1)</script>"}},
	}
	_, _, html := render(d)
	if strings.Contains(html, "<script>") {
		t.Error("html body not escaped")
	}
}

func TestRenderEscapesActionURL(t *testing.T) {
	d := &models.Digest{
		Type: models.FrequencyDaily,
		Items: []models.NotificationItem{{
			Event:     models.EventCommentReceived,
			Title:     "New comment",
			ActionURL: `https://example.com/c/1" onmouseover="alert(1)`,
		}},
	}
	_, _, html := render(d)
	if strings.Contains(html, `href="https://example.com/c/1" onmouseover=`) {
		t.Errorf("action URL broke out of the href attribute:\n%s", html)
	}
	if !strings.Contains(html, `href="https://example.com/c/1&#34;`) {
		t.Errorf("quote in action URL not escaped:\n%s", html)
	}
}

func TestGroupTitleFallback(t *testing.T) {
	if got := groupTitle(models.EventSystemAlert); got != "System alert" {
		t.Errorf("groupTitle = %q", got)
	}
}
