package main

// Set by -ldflags "-X main.version=..."
var version = "dev"
