// Package cacheserver is a single-node index and artifact store speaking the
// same protocol as the hosted services. It backs local development and CI
// setups that have no index service of their own.
//
// TODO: Authorization
package cacheserver
