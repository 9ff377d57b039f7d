package groupid

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/assert"
)

func TestStaticResolve(t *testing.T) {
	r := &Static{Value: TestDefault}
	v, err := r.Resolve()
	assert.NilError(t, err)
	assert.Equal(t, v, 3)
}

func TestStaticRejectsNegative(t *testing.T) {
	r := &Static{Value: -1}
	_, err := r.Resolve()
	assert.Check(t, err != nil)
}

func interactive(input string) (*Interactive, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Interactive{In: strings.NewReader(input), Out: out}, out
}

func TestInteractiveConfirmFirstTry(t *testing.T) {
	r, _ := interactive("7\ny\n")
	v, err := r.Resolve()
	assert.NilError(t, err)
	assert.Equal(t, v, 7)
}

func TestInteractiveNonNumericReprompts(t *testing.T) {
	r, out := interactive("abc\n12\nY\n")
	v, err := r.Resolve()
	assert.NilError(t, err)
	assert.Equal(t, v, 12)
	assert.Check(t, strings.Contains(out.String(), `"abc" is not a number`))
}

func TestInteractiveRejectionRestartsNumber(t *testing.T) {
	// 7 rejected, then 9 confirmed.
	r, _ := interactive("7\nn\n9\ny\n")
	v, err := r.Resolve()
	assert.NilError(t, err)
	assert.Equal(t, v, 9)
}

func TestInteractiveUnrecognizedAnswerReasksConfirmation(t *testing.T) {
	// "maybe" must not count as rejection: the number is not re-asked.
	r, out := interactive("7\nmaybe\ny\n")
	v, err := r.Resolve()
	assert.NilError(t, err)
	assert.Equal(t, v, 7)
	assert.Equal(t, strings.Count(out.String(), "Enter the group id"), 1)
	assert.Equal(t, strings.Count(out.String(), "Use group id 7?"), 2)
}

func TestInteractiveInputExhaustion(t *testing.T) {
	r, _ := interactive("7\n")
	_, err := r.Resolve()
	assert.Check(t, err != nil)
}

func TestAppendAccumulates(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "service.env")
	assert.NilError(t, os.WriteFile(envFile, []byte("WEB_SERVER=x\n"), 0644))

	assert.NilError(t, Append(envFile, 4))
	assert.NilError(t, Append(envFile, 8))

	data, err := os.ReadFile(envFile)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "WEB_SERVER=x\nGROUP_ID=4\nGROUP_ID=8\n")

	// readers take the last line, as the shell's source did
	v, err := Read(envFile)
	assert.NilError(t, err)
	assert.Equal(t, v, 8)
}

func TestRewriteKeepsSingleEntry(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "service.env")
	assert.NilError(t, os.WriteFile(envFile, []byte("WEB_SERVER=x\nGROUP_ID=1\nGROUP_ID=2\n"), 0644))

	assert.NilError(t, Rewrite(envFile, 5))

	data, err := os.ReadFile(envFile)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "WEB_SERVER=x\nGROUP_ID=5\n")
}

func TestRewriteCreatesFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "service.env")
	assert.NilError(t, Rewrite(envFile, 5))
	v, err := Read(envFile)
	assert.NilError(t, err)
	assert.Equal(t, v, 5)
}

func TestReadWithoutEntry(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "service.env")
	assert.NilError(t, os.WriteFile(envFile, []byte("WEB_SERVER=x\n"), 0644))
	_, err := Read(envFile)
	assert.Check(t, err != nil)
}
