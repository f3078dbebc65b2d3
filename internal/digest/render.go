// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package digest

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/herald-notify/herald/internal/models"
)

// groupTitles maps event types to the section headings used in digests.
var groupTitles = map[models.EventType]string{
	models.EventWorkUpdated:     "Work updates",
	models.EventWorkCompleted:   "Completed works",
	models.EventNewWork:         "New works",
	models.EventSeriesUpdated:   "Series updates",
	models.EventCommentReceived: "Comments",
	models.EventCommentReplied:  "Replies",
	models.EventKudosReceived:   "Kudos",
	models.EventBookmarkAdded:   "Bookmarks",
	models.EventGiftReceived:    "Gifts",
}

// groupOrder fixes the section order; unlisted event types go last in the
// order they appear.
var groupOrder = []models.EventType{
	models.EventCommentReceived,
	models.EventCommentReplied,
	models.EventGiftReceived,
	models.EventWorkUpdated,
	models.EventWorkCompleted,
	models.EventSeriesUpdated,
	models.EventNewWork,
	models.EventKudosReceived,
	models.EventBookmarkAdded,
}

func groupTitle(eventType models.EventType) string {
	if title, ok := groupTitles[eventType]; ok {
		return title
	}
	s := strings.ReplaceAll(string(eventType), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func frequencyLabel(freq models.Frequency) string {
	switch freq {
	case models.FrequencyWeekly:
		return "weekly"
	case models.FrequencyDaily:
		return "daily"
	default:
		return "activity"
	}
}

// render produces the subject line and both body variants for a digest.
// Items are grouped by event type and ordered by priority within each group.
func render(d *models.Digest) (subject, text, htmlBody string) {
	noun := "notifications"
	if len(d.Items) == 1 {
		noun = "notification"
	}
	subject = fmt.Sprintf("Your %s digest: %d %s", frequencyLabel(d.Type), len(d.Items), noun)

	groups := make(map[models.EventType][]models.NotificationItem)
	var order []models.EventType
	seen := make(map[models.EventType]bool)
	for _, et := range groupOrder {
		seen[et] = true
	}
	for _, item := range d.Items {
		if _, ok := groups[item.Event]; !ok && !seen[item.Event] {
			order = append(order, item.Event)
		}
		groups[item.Event] = append(groups[item.Event], item)
	}
	order = append(append([]models.EventType{}, groupOrder...), order...)

	for _, items := range groups {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Priority.Rank() > items[j].Priority.Rank()
		})
	}

	var tb, hb strings.Builder
	tb.WriteString(subject + "\n")
	hb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", html.EscapeString(subject)))

	for _, et := range order {
		items, ok := groups[et]
		if !ok {
			continue
		}
		title := groupTitle(et)

		tb.WriteString("\n" + title + "\n")
		tb.WriteString(strings.Repeat("-", len(title)) + "\n")
		hb.WriteString(fmt.Sprintf("<h2>%s</h2>\n<ul>\n", html.EscapeString(title)))

		for _, item := range items {
			line := item.Title
			if item.Description != "" {
				line += ": " + item.Description
			}
			tb.WriteString("* " + line + "\n")
			if item.ActionURL != "" {
				tb.WriteString("  " + item.ActionURL + "\n")
			}

			if item.ActionURL != "" {
				hb.WriteString(fmt.Sprintf(`<li><a href="%s">%s</a>`, html.EscapeString(item.ActionURL), html.EscapeString(line)))
			} else {
				hb.WriteString("<li>" + html.EscapeString(line))
			}
			hb.WriteString("</li>\n")
		}
		hb.WriteString("</ul>\n")
	}

	tb.WriteString("\nYou are receiving this digest because of your notification preferences.\n")
	hb.WriteString("<p>You are receiving this digest because of your notification preferences.</p>\n")

	return subject, tb.String(), hb.String()
}
