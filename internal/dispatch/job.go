package dispatch

import "context"

// Job pairs an outgoing command with the handler for its response.
//
// A Job is usually created once per hardware component and reused for every
// poll. The queue only borrows it while the entry is pending.
type Job interface {
	// GenerateCommand returns the command string to transmit.
	GenerateCommand() string

	// ProcessResponse applies a response to the owner's state. It returns an
	// error if the response cannot be interpreted; in that case the owner
	// must leave its previous state untouched.
	ProcessResponse(response string) error
}

// Exchanger performs one command/response round trip on the physical channel.
//
// Implementations must return no later than the context deadline. The
// worker relies on this to guarantee that a timed-out exchange is over before
// the next one starts.
type Exchanger interface {
	Exchange(ctx context.Context, command string) (string, error)
}

type funcJob struct {
	command  func() string
	response func(string) error
}

func (j *funcJob) GenerateCommand() string { return j.command() }

func (j *funcJob) ProcessResponse(response string) error {
	if j.response == nil {
		return nil
	}
	return j.response(response)
}

// JobFunc adapts a pair of functions to the [Job] interface.
// A nil response handler discards the response.
func JobFunc(command func() string, response func(string) error) Job {
	return &funcJob{command: command, response: response}
}
