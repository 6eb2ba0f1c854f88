package events

import "fmt"

const (
	StreamName     = "PLANWARD"
	SubjectPrefix  = "planward"
	SubjectPattern = "planward.>"
)

func SubjectGraphGenerated(projectID string) string {
	return fmt.Sprintf("%s.graph.%s.generated", SubjectPrefix, projectID)
}

func SubjectBacklogGenerated(projectID string) string {
	return fmt.Sprintf("%s.backlog.%s.generated", SubjectPrefix, projectID)
}

func SubjectPlanGenerated(projectID string) string {
	return fmt.Sprintf("%s.plan.%s.generated", SubjectPrefix, projectID)
}
