package clarify

import (
	"fmt"

	"github.com/intakeflow/server/internal/intake"
)

// Entry is the wording used to ask for one field.
type Entry struct {
	Prompt    string
	Rationale string
	Options   []string
}

// Catalog maps dotted field paths to question wording.
type Catalog struct {
	Fields   map[string]Entry
	Sections map[intake.Section]string
}

// Lookup returns the entry for path, falling back to a generic prompt and the
// section rationale for paths the catalog does not know.
func (c Catalog) Lookup(path intake.FieldPath) Entry {
	if e, ok := c.Fields[path.String()]; ok {
		if e.Rationale == "" {
			e.Rationale = c.Sections[path.Section()]
		}
		return e
	}
	return Entry{
		Prompt:    fmt.Sprintf("Please provide %s:", path.String()),
		Rationale: c.Sections[path.Section()],
	}
}

// DefaultCatalog carries the wording of the business intake form.
func DefaultCatalog() Catalog {
	return Catalog{
		Sections: map[intake.Section]string{
			intake.ClientProfile: "Identifies the business so research can be grounded in its market.",
			intake.SalesOps:      "Shows how leads turn into sales today and where automation can step in.",
			intake.Marketing:     "Maps lead sources and routing so agents can capture every inbound lead.",
			intake.Retention:     "Drives the follow-up and re-engagement agents.",
			intake.AIReadiness:   "Tells how far the team is from adopting AI tooling.",
			intake.TechStack:     "Determines which integrations the generated agents can rely on.",
			intake.GoalsTimeline: "Sets priorities and pacing for the implementation plan.",
			intake.HAF:           "Defines the agent hierarchy: roles, workflows and delegable tasks.",
			intake.CII:           "Specifies memory, tooling, compliance and latency needs of the agents.",
		},
		Fields: map[string]Entry{
			"ClientProfile.name":      {Prompt: "Your Name"},
			"ClientProfile.business":  {Prompt: "Business Name"},
			"ClientProfile.website":   {Prompt: "Business Website"},
			"ClientProfile.industry":  {Prompt: "Industry", Options: []string{"Jewelry", "Med Spa", "Real Estate", "Fitness", "Other"}},
			"ClientProfile.location":  {Prompt: "Location"},
			"ClientProfile.revenue":   {Prompt: "Annual Revenue (USD)"},
			"ClientProfile.employees": {Prompt: "Number of Employees"},

			"SalesOps.sales_process": {Prompt: "Describe your current sales process:"},
			"SalesOps.lead_tools":    {Prompt: "What tools do you currently use for leads and appointments?"},
			"SalesOps.crm":           {Prompt: "Which CRM do you use (if any)?"},
			"SalesOps.booking":       {Prompt: "How are appointments currently booked?"},
			"SalesOps.followups":     {Prompt: "How do you track follow-ups or missed leads?"},

			"Marketing.channels":    {Prompt: "Active Marketing Channels (comma separated)", Options: []string{"Google Ads", "Meta Ads", "TikTok", "SEO", "Influencer", "Referral", "Events"}},
			"Marketing.routing":     {Prompt: "How are leads captured and routed?"},
			"Marketing.post_lead":   {Prompt: "Describe what happens after a lead comes in:"},
			"Marketing.automations": {Prompt: "Any automations currently in place?"},

			"Retention.sales_cycle":       {Prompt: "Average Sales Cycle (days)"},
			"Retention.follow_up_tactics": {Prompt: "How do you follow up with missed calls, abandoned carts, or no-shows?"},
			"Retention.programs":          {Prompt: "Any current loyalty, membership, or re-engagement programs?"},

			"AIReadiness.uses_ai":      {Prompt: "Are you using AI currently?", Options: []string{"Yes", "No"}},
			"AIReadiness.tools":        {Prompt: "If yes, describe your AI tools or setup:"},
			"AIReadiness.manual_areas": {Prompt: "Where do you spend the most manual time? (comma separated)", Options: []string{"Lead follow-up", "Appointment setting", "Content creation", "Customer questions"}},
			"AIReadiness.dream":        {Prompt: "What would you automate tomorrow if it worked perfectly?"},

			"TechStack.tools":      {Prompt: "Current Tools in Use (comma separated)", Options: []string{"Calendly", "Shopify", "Squarespace", "Twilio", "Stripe", "Zapier", "Klaviyo", "Mailchimp", "GoHighLevel"}},
			"TechStack.api_access": {Prompt: "Do you have admin/API access to these tools?", Options: []string{"Yes", "No", "Not sure"}},
			"TechStack.comms":      {Prompt: "Preferred customer communication method:", Options: []string{"Text", "Email", "Phone", "DMs", "Website Chat"}},

			"GoalsTimeline.goals":      {Prompt: "Top 3 revenue goals (next 6 months):"},
			"GoalsTimeline.problem":    {Prompt: "What's the #1 problem you're trying to solve right now?"},
			"GoalsTimeline.comfort":    {Prompt: "Comfort level with automation/AI:", Options: []string{"Bring on the robots", "Need guidance", "Start simple"}},
			"GoalsTimeline.engagement": {Prompt: "Preferred engagement model:", Options: []string{"Done-For-You", "Hybrid", "DIY with Support"}},
			"GoalsTimeline.timeline":   {Prompt: "Implementation timeline:", Options: []string{"<30 days", "30-60 days", "60-90 days", "Flexible"}},

			"HAF.CriticalRoles":   {Prompt: "List critical roles and responsibilities"},
			"HAF.KeyWorkflows":    {Prompt: "Map key workflows (e.g., Lead → Sale → Delivery)"},
			"HAF.AIEligibleTasks": {Prompt: "Which tasks could be delegated to AI agents?"},

			"CII.MemoryRequirements": {Prompt: "What memory or data history do agents need?"},
			"CII.ToolsRequired":      {Prompt: "List specific APIs/tools needed for each agent"},
			"CII.SecurityNotes":      {Prompt: "Any compliance or regulatory constraints?"},
			"CII.Latency.Realtime":   {Prompt: "Which workflows need real-time execution?"},
			"CII.Latency.Async":      {Prompt: "Which can run in background or off-hours?"},
		},
	}
}
