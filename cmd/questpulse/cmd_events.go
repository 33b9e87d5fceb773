package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// cmdEvents lists recent activity events
func cmdEvents(args []string) error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'questpulse start' first)")
	}

	query := url.Values{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--type":
			if i+1 < len(args) {
				query.Set("type", args[i+1])
				i++
			}
		case "-n":
			if i+1 < len(args) {
				query.Set("n", args[i+1])
				i++
			}
		}
	}

	endpoint := daemonAddr + "/v1/events"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("get events: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Events []struct {
			Type      string    `json:"type"`
			Timestamp time.Time `json:"timestamp"`
			Entity    struct {
				Kind string `json:"kind"`
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"entity"`
		} `json:"events"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parse events: %w", err)
	}

	if len(body.Events) == 0 {
		fmt.Println("No events recorded yet.")
		return nil
	}

	for _, e := range body.Events {
		entity := e.Entity.ID
		if e.Entity.Name != "" {
			entity = e.Entity.Name
		}
		fmt.Printf("%s  %-28s %s/%s\n",
			e.Timestamp.Format("2006-01-02 15:04"), e.Type, e.Entity.Kind, entity)
	}
	fmt.Printf("\n%d shown, %d total\n", len(body.Events), body.Total)

	return nil
}

// cmdTriggers lists the trigger set with cooldown state
func cmdTriggers() error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'questpulse start' first)")
	}

	resp, err := http.Get(daemonAddr + "/v1/triggers")
	if err != nil {
		return fmt.Errorf("get triggers: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Triggers []struct {
			ID            string     `json:"id"`
			ResponseLevel string     `json:"response_level"`
			Enabled       bool       `json:"enabled"`
			Cooldown      int64      `json:"cooldown"`
			LastTriggered *time.Time `json:"last_triggered"`
		} `json:"triggers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parse triggers: %w", err)
	}

	for _, t := range body.Triggers {
		state := "enabled"
		if !t.Enabled {
			state = "disabled"
		}
		last := "never fired"
		if t.LastTriggered != nil {
			last = "last fired " + t.LastTriggered.Format("2006-01-02 15:04")
		}
		fmt.Printf("  %-20s %-8s %-8s cooldown %-8s %s\n",
			t.ID, t.ResponseLevel, state, time.Duration(t.Cooldown), last)
	}

	return nil
}

// cmdIntervention drives the active intervention lifecycle
func cmdIntervention(args []string) error {
	if len(args) < 1 {
		fmt.Println(`Intervention commands:

  questpulse intervention show           Show the active intervention
  questpulse intervention acknowledge    Acknowledge it
  questpulse intervention escalate       Escalate to coach mode
  questpulse intervention resolve [note] Resolve with an optional note
  questpulse intervention dismiss        Dismiss without resolution
  questpulse intervention history        List past interventions`)
		return nil
	}

	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'questpulse start' first)")
	}

	switch args[0] {
	case "show":
		return showIntervention()
	case "acknowledge", "escalate", "dismiss":
		return postIntervention(args[0], nil)
	case "resolve":
		payload := map[string]any{}
		if len(args) > 1 {
			payload["resolution"] = strings.Join(args[1:], " ")
		}
		return postIntervention("resolve", payload)
	case "history":
		return showInterventionHistory()
	default:
		return fmt.Errorf("unknown intervention command: %s", args[0])
	}
}

func showIntervention() error {
	resp, err := http.Get(daemonAddr + "/v1/interventions/active")
	if err != nil {
		return fmt.Errorf("get intervention: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		fmt.Println("No active intervention.")
		return nil
	}

	var iv struct {
		TriggerID    string    `json:"trigger_id"`
		Status       string    `json:"status"`
		CurrentLevel string    `json:"current_level"`
		StartedAt    time.Time `json:"started_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&iv); err != nil {
		return fmt.Errorf("parse intervention: %w", err)
	}

	fmt.Printf("Trigger: %s\n", iv.TriggerID)
	fmt.Printf("Status:  %s\n", iv.Status)
	fmt.Printf("Level:   %s\n", iv.CurrentLevel)
	fmt.Printf("Since:   %s\n", iv.StartedAt.Format("2006-01-02 15:04"))
	return nil
}

func postIntervention(action string, payload map[string]any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader([]byte("{}"))
	}

	resp, err := http.Post(daemonAddr+"/v1/interventions/"+action, "application/json", body)
	if err != nil {
		return fmt.Errorf("%s intervention: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		fmt.Println("No active intervention.")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed with status %d", action, resp.StatusCode)
	}

	fmt.Printf("✓ intervention %s\n", action)
	return nil
}

func showInterventionHistory() error {
	resp, err := http.Get(daemonAddr + "/v1/interventions/history")
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		History []struct {
			TriggerID  string     `json:"trigger_id"`
			Status     string     `json:"status"`
			StartedAt  time.Time  `json:"started_at"`
			ResolvedAt *time.Time `json:"resolved_at"`
			Resolution string     `json:"resolution"`
		} `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parse history: %w", err)
	}

	if len(body.History) == 0 {
		fmt.Println("No past interventions.")
		return nil
	}

	for _, iv := range body.History {
		line := fmt.Sprintf("%s  %-20s %s",
			iv.StartedAt.Format("2006-01-02 15:04"), iv.TriggerID, iv.Status)
		if iv.Resolution != "" {
			line += " (" + iv.Resolution + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// cmdChat sends a message to the conversation, opening an ad hoc session
// first when none is active.
func cmdChat(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("message required: questpulse chat \"your message\"")
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'questpulse start' first)")
	}

	payload, err := json.Marshal(map[string]any{
		"content": strings.Join(args, " "),
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(daemonAddr+"/v1/conversation/messages", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		resp.Body.Close()
		if err := openConversation(); err != nil {
			return err
		}
		resp, err = http.Post(daemonAddr+"/v1/conversation/messages", "application/json", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send failed with status %d", resp.StatusCode)
	}

	var body struct {
		Response struct {
			Message string `json:"message"`
		} `json:"response"`
		Session struct {
			Mode string `json:"mode"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("[%s] %s\n", body.Session.Mode, body.Response.Message)
	return nil
}

// openConversation opens an ad hoc friend session and prints its opener.
func openConversation() error {
	resp, err := http.Post(daemonAddr+"/v1/conversation", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("open conversation failed with status %d", resp.StatusCode)
	}

	var body struct {
		Session struct {
			Mode string `json:"mode"`
		} `json:"session"`
		Response struct {
			Message string `json:"message"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parse opener: %w", err)
	}

	fmt.Printf("[%s] %s\n", body.Session.Mode, body.Response.Message)
	return nil
}

// cmdPostpone records a deadline postponement for a task
func cmdPostpone(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("task id required: questpulse postpone <task-id>")
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'questpulse start' first)")
	}

	resp, err := http.Post(daemonAddr+"/v1/tasks/"+url.PathEscape(args[0])+"/postpone",
		"application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("record postpone: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		PostponeCount int `json:"postpone_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("Postpone %d recorded for %s\n", body.PostponeCount, args[0])
	if body.PostponeCount >= 3 {
		fmt.Println("That deadline has moved a few times now. Expect the coach to check in.")
	}
	return nil
}
