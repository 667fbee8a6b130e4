// Package core provides the small set of domain types shared by every
// chainkit package:
//
//   - Content / Part (role based conversational content)
//   - Document (retrieved text with metadata and a relevance score)
//   - SessionLimiter (bounded admission of concurrent stream sessions)
//
// The package has no dependencies on model providers, tools or the streaming
// runtime so it can be imported from anywhere without cycles.
package core
