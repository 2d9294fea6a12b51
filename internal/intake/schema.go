package intake

// Section is one of the fixed top-level keys of an intake document.
type Section string

const (
	ClientProfile Section = "ClientProfile"
	SalesOps      Section = "SalesOps"
	Marketing     Section = "Marketing"
	Retention     Section = "Retention"
	AIReadiness   Section = "AIReadiness"
	TechStack     Section = "TechStack"
	GoalsTimeline Section = "GoalsTimeline"
	HAF           Section = "HAF"
	CII           Section = "CII"
)

// Sentinel fills every expected field that carries no usable data.
const Sentinel = "Insufficient data."

// Kind tells how a clarification answer is coerced before it is merged.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	default:
		return "text"
	}
}

// Field is one expected leaf of the intake schema.
type Field struct {
	Path FieldPath
	Kind Kind
}

// Sections lists the sections in canonical order.
var Sections = []Section{
	ClientProfile,
	SalesOps,
	Marketing,
	Retention,
	AIReadiness,
	TechStack,
	GoalsTimeline,
	HAF,
	CII,
}

var schema = map[Section][]Field{
	ClientProfile: {
		text(ClientProfile, "name"),
		text(ClientProfile, "business"),
		text(ClientProfile, "website"),
		text(ClientProfile, "industry"),
		text(ClientProfile, "location"),
		number(ClientProfile, "revenue"),
		number(ClientProfile, "employees"),
	},
	SalesOps: {
		text(SalesOps, "sales_process"),
		text(SalesOps, "lead_tools"),
		text(SalesOps, "crm"),
		text(SalesOps, "booking"),
		text(SalesOps, "followups"),
	},
	Marketing: {
		list(Marketing, "channels"),
		text(Marketing, "routing"),
		text(Marketing, "post_lead"),
		text(Marketing, "automations"),
	},
	Retention: {
		number(Retention, "sales_cycle"),
		text(Retention, "follow_up_tactics"),
		text(Retention, "programs"),
	},
	AIReadiness: {
		text(AIReadiness, "uses_ai"),
		text(AIReadiness, "tools"),
		list(AIReadiness, "manual_areas"),
		text(AIReadiness, "dream"),
	},
	TechStack: {
		list(TechStack, "tools"),
		text(TechStack, "api_access"),
		text(TechStack, "comms"),
	},
	GoalsTimeline: {
		text(GoalsTimeline, "goals"),
		text(GoalsTimeline, "problem"),
		text(GoalsTimeline, "comfort"),
		text(GoalsTimeline, "engagement"),
		text(GoalsTimeline, "timeline"),
	},
	HAF: {
		text(HAF, "CriticalRoles"),
		text(HAF, "KeyWorkflows"),
		text(HAF, "AIEligibleTasks"),
	},
	CII: {
		text(CII, "MemoryRequirements"),
		text(CII, "ToolsRequired"),
		text(CII, "SecurityNotes"),
		text(CII, "Latency", "Realtime"),
		text(CII, "Latency", "Async"),
	},
}

// Fields returns the expected fields of s in canonical order.
func Fields(s Section) []Field {
	out := make([]Field, len(schema[s]))
	copy(out, schema[s])
	return out
}

// Schema returns every expected field, section by section.
func Schema() []Field {
	var out []Field
	for _, s := range Sections {
		out = append(out, schema[s]...)
	}
	return out
}

// Lookup returns the schema field for path.
func Lookup(path FieldPath) (Field, bool) {
	for _, f := range schema[path.Section()] {
		if f.Path.Equal(path) {
			return f, true
		}
	}
	return Field{}, false
}

// IsSection reports whether name is one of the known sections.
func IsSection(name string) bool {
	_, ok := schema[Section(name)]
	return ok
}

func text(s Section, parts ...string) Field {
	return Field{Path: append(FieldPath{string(s)}, parts...), Kind: KindText}
}

func number(s Section, parts ...string) Field {
	return Field{Path: append(FieldPath{string(s)}, parts...), Kind: KindNumber}
}

func list(s Section, parts ...string) Field {
	return Field{Path: append(FieldPath{string(s)}, parts...), Kind: KindList}
}
