// seed_stories.go — standalone script to parse a BACKLOG.md file and seed
// user stories into a project via the Planward API.
//
// Expected format:
//
//	## Epic Name
//	- [ ] US-1: Story name (5) !high
//	- [ ] US-2: Another story (8)
//
// Usage:
//
//	go run scripts/seed_stories.go -backlog /path/to/BACKLOG.md -api http://localhost:8700 -project 64a1b2c3d4e5f60718293a4b
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
)

type storyItem struct {
	Code        string `json:"code"`
	Epic        string `json:"epic,omitempty"`
	Name        string `json:"name"`
	Priority    string `json:"priority"`
	StoryPoints int    `json:"story_points"`
	Status      string `json:"status,omitempty"`
}

// Matches "US-1: Story name (5)" with an optional priority marker.
var storyLineRe = regexp.MustCompile(`^([A-Z]+-\d+):\s*(.+?)\s*\((\d+)\)\s*(!high|!medium|!low)?$`)

func main() {
	backlogPath := flag.String("backlog", "BACKLOG.md", "path to backlog markdown file")
	apiURL := flag.String("api", "http://localhost:8700", "Planward API base URL")
	projectID := flag.String("project", "", "target project id")
	dryRun := flag.Bool("dry-run", false, "print stories without posting")
	flag.Parse()

	if *projectID == "" && !*dryRun {
		log.Fatal("-project is required")
	}

	f, err := os.Open(*backlogPath)
	if err != nil {
		log.Fatalf("open backlog: %v", err)
	}
	defer f.Close()

	var stories []storyItem
	var currentEpic string
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "## ") {
			currentEpic = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}

		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- [") {
			continue
		}

		isDone := strings.HasPrefix(trimmed, "- [x]") || strings.HasPrefix(trimmed, "- [X]")
		text := trimmed
		text = strings.TrimPrefix(text, "- [x] ")
		text = strings.TrimPrefix(text, "- [X] ")
		text = strings.TrimPrefix(text, "- [ ] ")

		m := storyLineRe.FindStringSubmatch(text)
		if m == nil {
			log.Printf("skip unparseable line: %q", text)
			continue
		}

		points, _ := strconv.Atoi(m[3])
		priority := "Medium"
		switch m[4] {
		case "!high":
			priority = "High"
		case "!low":
			priority = "Low"
		}

		item := storyItem{
			Code:        m[1],
			Epic:        currentEpic,
			Name:        m[2],
			Priority:    priority,
			StoryPoints: points,
		}
		if isDone {
			item.Status = "Done"
		}
		stories = append(stories, item)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("scan backlog: %v", err)
	}

	log.Printf("parsed %d stories from %s", len(stories), *backlogPath)

	if *dryRun {
		for i, st := range stories {
			fmt.Printf("[%d] %s: %s (epic=%s, points=%d, priority=%s)\n",
				i+1, st.Code, st.Name, st.Epic, st.StoryPoints, st.Priority)
		}
		return
	}
	if len(stories) == 0 {
		return
	}

	body, _ := json.Marshal(stories)
	url := fmt.Sprintf("%s/api/v1/projects/%s/stories/bulk", *apiURL, *projectID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("post stories: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		log.Fatalf("seed failed: status %d: %s", resp.StatusCode, msg)
	}
	log.Printf("done: %d stories created", len(stories))
}
