package repository

import (
	"fmt"
	"strings"
)

// ErrNotFound should be returned by all repository functions whenever one or more
// resources can't be found.
//
// When constructing errors of this type, you need to prepend the resource type.
// For example, if a stream with name "foo" can't be found, create the error with
// &ErrNotFound{ResourceNames: []string{"stream \"foo\""}}
// instead of &ErrNotFound{ResourceNames: []string{"\"foo\""}}.
// Doing so makes it unambiguous to the user which resource is referred to.
//
// This error produces error messages of the form
// "could not find stream "foo"", or, if several resources are missing,
// "could not find any of [stream "foo", group "bar"]".
type ErrNotFound struct {
	ResourceNames []string
}

func (err *ErrNotFound) Error() string {
	if len(err.ResourceNames) == 0 {
		return "could not find <UNKNOWN>"
	} else if len(err.ResourceNames) == 1 {
		return fmt.Sprintf("could not find %q", err.ResourceNames[0])
	} else {
		return fmt.Sprintf("could not find any of [%s]", strings.Join(err.ResourceNames, ", "))
	}
}
