package dialogue

import "context"

// Param is a string argument accepted by a callable tool.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// FunctionDecl declares a tool the model may request.
type FunctionDecl struct {
	Name        string
	Description string
	Params      []Param
}

// RequiredParams returns the names of the required arguments in declaration order.
func (f FunctionDecl) RequiredParams() []string {
	var out []string
	for _, p := range f.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Instruction is the fixed configuration a model session is created with.
type Instruction struct {
	System string
	Tools  []FunctionDecl
	// JSONOutput asks the provider to constrain output to JSON. Providers may
	// ignore it when tools are declared.
	JSONOutput bool
}

// ProviderResponse is the raw provider output for one exchange.
type ProviderResponse struct {
	Text  string
	Calls []Invocation
}

// Provider opens model sessions.
type Provider interface {
	StartSession(ctx context.Context, modelID string, inst Instruction) (ModelSession, error)
}

// ModelSession is one stateful conversation with a model. Implementations keep
// their own history between calls.
type ModelSession interface {
	SendText(ctx context.Context, text string) (ProviderResponse, error)
	SendFunctionResult(ctx context.Context, name string, result map[string]any) (ProviderResponse, error)
	// SendStream delivers text deltas to onChunk as they arrive and returns the
	// full reply text.
	SendStream(ctx context.Context, text string, onChunk func(string)) (string, error)
}
