package job

import (
	"fmt"
	"strings"
)

// Details describes the work a job performs: the class and method to invoke
// and the serialized argument list. Two jobs with equal Details are
// duplicates of each other for deduplication purposes.
type Details struct {
	Class  string   `json:"class" msgpack:"class"`
	Method string   `json:"method" msgpack:"method"`
	Args   []string `json:"args,omitempty" msgpack:"args,omitempty"`
}

// Signature returns the stable dedupe key for the details, in the form
// Class.Method(arg1,arg2). Signatures key the per-state signature indexes
// backing Store.JobExists.
func (d Details) Signature() string {
	return fmt.Sprintf("%s.%s(%s)", d.Class, d.Method, strings.Join(d.Args, ","))
}
