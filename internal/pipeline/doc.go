// Package pipeline holds the filters and minifiers a bundle variant is run through.
//
// Filters see one resource at a time together with the variance params of the
// variant being built. Minifiers see the combined output.
package pipeline
