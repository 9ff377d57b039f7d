package launcher

import (
	"context"
	"testing"

	"github.com/GuillermoLopezEsteve/ClientService/pkg/internal/testoutput"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/logging"
	"github.com/pkg/errors"
	"gotest.tools/assert"
)

func TestArgvContract(t *testing.T) {
	argv := Argv("/opt/clientservice/clientservice.py", 7, "/opt/clientservice/tasks.json", "https://tasks.example.net/update", false)
	assert.DeepEqual(t, argv, []string{
		"/opt/clientservice/clientservice.py",
		"7",
		"/opt/clientservice/tasks.json",
		"https://tasks.example.net/update",
		"False",
	})

	argv = Argv("bin", 0, "tasks", "endpoint", true)
	assert.Equal(t, argv[4], "True")
	assert.Equal(t, argv[1], "0")
}

type testCommand struct {
	calls  int
	argv   []string
	output string
	fn     func() error
}

func (c *testCommand) Run(_ context.Context, argv []string, output string) error {
	c.calls++
	c.argv = argv
	c.output = output
	if c.fn != nil {
		return c.fn()
	}
	return nil
}

func testInvoker(t *testing.T) (*Invoker, *testCommand) {
	argv := Argv("/opt/clientservice/clientservice.py", 7, "/opt/clientservice/tasks.json", "https://tasks.example.net/update", false)
	inv, err := NewInvoker(testoutput.Logger(t, logging.New("launcher")), argv, "/var/log/clientservice.log")
	assert.NilError(t, err)
	cmd := &testCommand{}
	inv.Bin = cmd
	return inv, cmd
}

func TestInvokePassesArgvAndOutput(t *testing.T) {
	inv, cmd := testInvoker(t)
	assert.NilError(t, inv.Invoke(context.Background()))
	assert.Equal(t, cmd.calls, 1)
	assert.Equal(t, cmd.argv[1], "7")
	assert.Equal(t, cmd.output, "/var/log/clientservice.log")
}

func TestInvokeFailureIsReturnedNotFatal(t *testing.T) {
	inv, cmd := testInvoker(t)
	cmd.fn = func() error { return errors.New("exit status 1") }

	assert.Check(t, inv.Invoke(context.Background()) != nil)

	// the invoker stays usable for the next cycle
	cmd.fn = nil
	assert.NilError(t, inv.Invoke(context.Background()))
	assert.Equal(t, cmd.calls, 2)
}

func TestNewInvokerRejectsEmptyArgv(t *testing.T) {
	_, err := NewInvoker(testoutput.Logger(t, logging.New("launcher")), nil, "")
	assert.Check(t, err != nil)
}
