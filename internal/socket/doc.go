// Package socket serves the gateway's line protocol over TCP.
//
// Each connection gets its own goroutine and protocol session. A command is
// one newline-terminated line; the reply is the flat rendition of the
// response followed by a newline:
//
//	> ROOMLIST
//	< Kitchen~21.5~20.8#Hall~19~18.2
//	> SCENE~ACTIVATE~Nope
//	< ERROR~4~ProtocolException~Scene not found
//
// Line sessions are trusted: AUTH is a WebSocket command and is unknown
// here. On shutdown every open connection is told the server is stopping
// before it is closed.
package socket
