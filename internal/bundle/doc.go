// Package bundle defines resource bundles and loads them from the
// bundles.json manifest at the root of a content snapshot.
//
// A bundle is a named, ordered list of CSS or JS files that is combined and
// served as one unit. Every bundle carries a content derived Version so that
// public URLs change whenever any of its resources change.
package bundle
