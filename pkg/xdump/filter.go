package xdump

import (
	"fmt"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

// Filter decides whether an object is rendered. A rejecting filter returns
// false and a reason, which is written as a comment in place of the object.
type Filter interface {
	Include(obj store.Handle, class string) (bool, string)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(obj store.Handle, class string) (bool, string)

func (f FilterFunc) Include(obj store.Handle, class string) (bool, string) {
	return f(obj, class)
}

// ExcludeClasses rejects objects of the named classes.
func ExcludeClasses(classes ...string) Filter {
	set := make(map[string]bool, len(classes))
	for _, c := range classes {
		set[c] = true
	}
	return FilterFunc(func(_ store.Handle, class string) (bool, string) {
		if set[class] {
			return false, "class " + class + " excluded"
		}
		return true, ""
	})
}

// ExcludeObjects rejects the given objects.
func ExcludeObjects(objs ...store.Handle) Filter {
	set := make(map[store.Handle]bool, len(objs))
	for _, h := range objs {
		set[h] = true
	}
	return FilterFunc(func(obj store.Handle, _ string) (bool, string) {
		if set[obj] {
			return false, "object excluded"
		}
		return true, ""
	})
}

// applyFilters consults filters in order and stops at the first rejection.
func applyFilters(filters []Filter, obj store.Handle, class string) (bool, string) {
	for _, f := range filters {
		if ok, reason := f.Include(obj, class); !ok {
			return false, fmt.Sprintf("%s %d skipped: %s", class, obj, reason)
		}
	}
	return true, ""
}
