// Package domain holds the error taxonomy shared by the agentd core and
// its public façade.
package domain
