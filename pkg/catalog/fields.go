package catalog

// Kind names one of the four catalog entity kinds.
type Kind string

const (
	KindDataset Kind = "dataset"
	KindTask    Kind = "task"
	KindFlow    Kind = "flow"
	KindRun     Kind = "run"
)

type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFloat
	FieldTime
	FieldUUID
)

// Field maps an external filter/sort field name onto its storage column.
// Only fields listed here are reachable from client requests; everything
// else is rejected with UnknownFieldError before any query is built.
type Field struct {
	Column   string
	Type     FieldType
	Sortable bool
	Nullable bool
}

// TieBreakField is appended to every sort and cursor predicate so pages
// are deterministic even when the requested sort key has duplicates.
const TieBreakField = "id"

var fieldsByKind = map[Kind]map[string]Field{
	KindDataset: {
		"id":                       {Column: "id", Type: FieldUUID, Sortable: true},
		"name":                     {Column: "name", Type: FieldString, Sortable: true},
		"version":                  {Column: "version", Type: FieldInt, Sortable: true},
		"uploader":                 {Column: "uploader", Type: FieldString},
		"upload_date":              {Column: "upload_date", Type: FieldTime, Sortable: true},
		"licence":                  {Column: "licence", Type: FieldString},
		"language":                 {Column: "language", Type: FieldString},
		"format":                   {Column: "format", Type: FieldString},
		"default_target_attribute": {Column: "default_target_attribute", Type: FieldString, Nullable: true},
		"visibility":               {Column: "visibility", Type: FieldString},
		"status":                   {Column: "status", Type: FieldString},
	},
	KindTask: {
		"id":                   {Column: "id", Type: FieldUUID, Sortable: true},
		"type":                 {Column: "type", Type: FieldString, Sortable: true},
		"dataset_id":           {Column: "dataset_id", Type: FieldUUID},
		"dataset_version":      {Column: "dataset_version", Type: FieldInt},
		"estimation_procedure": {Column: "estimation_procedure", Type: FieldString, Nullable: true},
		"target_feature":       {Column: "target_feature", Type: FieldString, Nullable: true},
		"evaluation_measure":   {Column: "evaluation_measure", Type: FieldString, Nullable: true},
		"created_at":           {Column: "created_at", Type: FieldTime, Sortable: true},
	},
	KindFlow: {
		"id":               {Column: "id", Type: FieldUUID, Sortable: true},
		"name":             {Column: "name", Type: FieldString, Sortable: true},
		"version":          {Column: "version", Type: FieldInt, Sortable: true},
		"external_version": {Column: "external_version", Type: FieldString, Nullable: true},
		"library":          {Column: "library", Type: FieldString, Nullable: true},
		"library_version":  {Column: "library_version", Type: FieldString, Nullable: true},
		"created_at":       {Column: "created_at", Type: FieldTime, Sortable: true},
	},
	KindRun: {
		"id":           {Column: "id", Type: FieldUUID, Sortable: true},
		"task_id":      {Column: "task_id", Type: FieldUUID},
		"flow_id":      {Column: "flow_id", Type: FieldUUID},
		"uploader":     {Column: "uploader", Type: FieldString},
		"status":       {Column: "status", Type: FieldString, Sortable: true},
		"started_at":   {Column: "started_at", Type: FieldTime, Sortable: true},
		"completed_at": {Column: "completed_at", Type: FieldTime, Sortable: true, Nullable: true},
	},
}

func lookupField(kind Kind, name string) (Field, bool) {
	fields, ok := fieldsByKind[kind]
	if !ok {
		return Field{}, false
	}
	f, ok := fields[name]
	return f, ok
}
