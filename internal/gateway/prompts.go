package gateway

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/todorun/internal/task"
)

// Sampling temperatures per operation.
const (
	analyzeTemperature   = 0.3
	generateTemperature  = 0.7
	interpretTemperature = 0.3
	executeTemperature   = 0.5
)

const analyzeSystemPrompt = `You are a project analyst. Decide whether the user's goal needs clarifying questions before it can be planned.

If the goal is vague or missing critical details, ask 2-3 specific questions.
If the goal is clear and detailed, ask none.

Respond with a JSON object:
{
  "needs_clarification": true or false,
  "questions": [{"question": "Specific question for the user", "why": "Why the answer matters for planning"}],
  "analysis": "Brief analysis of the goal"
}`

var expertiseGuidance = map[Expertise]string{
	ExpertiseBeginner:     "Break the work into very detailed, small steps. Explain technical terms. Include setup and configuration steps.",
	ExpertiseIntermediate: "Balance detail and brevity. Assume basic technical knowledge. Focus on the main deliverables.",
	ExpertiseExpert:       "Produce high-level tasks only. Assume deep technical expertise. Be concise but complete.",
}

const generateSystemTemplate = `You are an expert project planner. Break the user's goal into clear, actionable tasks.

User expertise level: %s
%s

Always cover the complete project lifecycle:
1. Planning and design tasks
2. Development tasks, split into specific features
3. Testing tasks (functionality, usability, performance)
4. Deployment tasks (staging, production, monitoring)
%s
Respond with a JSON object:
{
  "tasks": [
    {
      "id": 1,
      "title": "Brief task title",
      "description": "What needs to be done",
      "status": "pending",
      "phase": "planning|development|testing|deployment",
      "reasoning": "Why this task matters"
    }
  ]
}

Keep tasks atomic, actionable and well sequenced.`

const interpretSystemPrompt = `You are a task editing assistant. The user wants to change an existing task.

Work out what they are asking for and return the updated task. If the request is ambiguous, choose the most reasonable reading.
Omit any field the request does not change.

Respond with a JSON object:
{
  "title": "Updated title",
  "description": "Updated description",
  "phase": "planning|development|testing|deployment",
  "changes_made": ["Each specific change applied"],
  "interpretation": "How you read the request"
}`

const executeSystemTemplate = `You are an autonomous task executor. For the task you are given:
1. Work out what needs to be done
2. Choose suitable tools from: %s
3. Carry the task out step by step
4. Report a structured result

Respond with a JSON object:
{
  "status": "done|failed|needs-follow-up",
  "actions_taken": ["Each action performed"],
  "output": "What was created or done",
  "reflection": "Short reflection on the result",
  "tools_used": ["tool names"]
}`

func generateSystemPrompt(expertise Expertise, clarifications []Clarification) string {
	guidance, ok := expertiseGuidance[expertise]
	if !ok {
		expertise = DefaultExpertise
		guidance = expertiseGuidance[DefaultExpertise]
	}

	var qa strings.Builder
	if len(clarifications) > 0 {
		qa.WriteString("\nThe user answered these clarifying questions:\n")
		for _, c := range clarifications {
			fmt.Fprintf(&qa, "Q: %s\nA: %s\n", c.Question, c.Answer)
		}
	}
	return fmt.Sprintf(generateSystemTemplate, expertise, guidance, qa.String())
}

func analyzeUserPrompt(goal string) string {
	return fmt.Sprintf("User goal: %s\n\nDoes this goal need clarification? Respond only with JSON.", goal)
}

func generateUserPrompt(goal string) string {
	return fmt.Sprintf("User goal: %s\n\nBreak this down into a structured task list covering design, development, testing and deployment. Respond only with JSON.", goal)
}

func interpretUserPrompt(request string, current task.Task) string {
	phase := current.Phase
	if phase == "" {
		phase = task.DefaultPhase
	}
	return fmt.Sprintf("Current task:\nTitle: %s\nDescription: %s\nPhase: %s\n\nEdit request: %s\n\nApply the edit and return the updated task.",
		current.Title, current.Description, phase, request)
}

func executeSystemPrompt(capabilities []string) string {
	return fmt.Sprintf(executeSystemTemplate, strings.Join(capabilities, ", "))
}

func executeUserPrompt(t task.Task) string {
	return fmt.Sprintf("Task #%d: %s\nDescription: %s\n\nExecute this task now and report the result as JSON.", t.ID, t.Title, t.Description)
}
