package types

// RequestType classifies an API request for logging and error context
type RequestType string

const (
	RequestTypeGetByID        RequestType = "get_by_id"
	RequestTypeListOrSearch   RequestType = "list_or_search"
	RequestTypeMutation       RequestType = "mutation"
	RequestTypeUpload         RequestType = "upload"
	RequestTypePermissionOp   RequestType = "permission_op"
	RequestTypeAuthentication RequestType = "authentication"
)

// RequestContext carries per-request tracing information
type RequestContext struct {
	Profile           string      `json:"profile"`
	DriveID           string      `json:"driveId,omitempty"`
	InvolvedFileIDs   []string    `json:"involvedFileIds"`
	InvolvedParentIDs []string    `json:"involvedParentIds"`
	RequestType       RequestType `json:"requestType"`
	TraceID           string      `json:"traceId"`
}
