package ir

// ClientVersion is the synq client version reported in the User-Agent.
const ClientVersion = "0.1.0"
