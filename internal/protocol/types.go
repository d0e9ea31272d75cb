package protocol

// Op codes accepted by the session processor.
const (
	OpEval  = "eval"
	OpClose = "close"
)

// Argument keys carried in a request's args map.
const (
	ArgsSession    = "session"
	ArgsGremlin    = "gremlin"
	ArgsBindings   = "bindings"
	ArgsAliases    = "aliases"
	ArgsRebindings = "rebindings"
	ArgsLanguage   = "language"
	ArgsBatchSize  = "batchSize"
)

// Response status codes. 2xx carry results; 499 is the client's fault, 5xx
// the script's or the server's.
const (
	StatusSuccess                     = 200
	StatusNoContent                   = 204
	StatusRequestErrorInvalidArgs     = 499
	StatusServerError                 = 500
	StatusServerErrorScriptEvaluation = 597
)

type RequestMessage struct {
	RequestID string                 `json:"requestId"`
	Op        string                 `json:"op"`
	Args      map[string]interface{} `json:"args"`
}

type ResponseStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type ResponseResult struct {
	Data interface{} `json:"data"`
}

type ResponseMessage struct {
	RequestID string         `json:"requestId"`
	Status    ResponseStatus `json:"status"`
	Result    ResponseResult `json:"result"`
}

// Session returns the session argument, if present as a non-empty string.
func (m *RequestMessage) Session() (string, bool) {
	v, ok := m.Args[ArgsSession]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Gremlin returns the script argument, if present as a string.
func (m *RequestMessage) Gremlin() (string, bool) {
	v, ok := m.Args[ArgsGremlin]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Language returns the script dialect argument, or the empty string.
func (m *RequestMessage) Language() string {
	if v, ok := m.Args[ArgsLanguage]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// StringMapArg reads an args entry as a string-to-string map. JSON decoding
// hands us map[string]interface{}, so string values are unwrapped here.
func (m *RequestMessage) StringMapArg(key string) (map[string]string, bool) {
	v, ok := m.Args[key]
	if !ok || v == nil {
		return nil, false
	}
	switch typed := v.(type) {
	case map[string]string:
		if len(typed) == 0 {
			return nil, false
		}
		return typed, true
	case map[string]interface{}:
		if len(typed) == 0 {
			return nil, false
		}
		out := make(map[string]string, len(typed))
		for k, raw := range typed {
			s, ok := raw.(string)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// MapArg reads an args entry as a generic map.
func (m *RequestMessage) MapArg(key string) (map[string]interface{}, bool) {
	v, ok := m.Args[key]
	if !ok || v == nil {
		return nil, false
	}
	switch typed := v.(type) {
	case map[string]interface{}:
		return typed, true
	default:
		return nil, false
	}
}
