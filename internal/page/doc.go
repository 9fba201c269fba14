// Package page builds the generated part of a project's wiki page and
// splices it into the existing page text.
//
// A page is always laid out as prefix + separator + generated body. The
// prefix belongs to the people editing the page and is never touched; the
// body is owned by timelogbot and replaced wholesale on every run.
package page
