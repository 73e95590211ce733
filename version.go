package skkserv

// Name is the program name reported to GetVersion requests.
const Name = "skkserv"

// Version is set at build time via -ldflags "-X github.com/Zereker/skkserv.Version=...".
var Version = "dev"
