// Package api exposes the coordinator over HTTP: conversion and
// transcription endpoints, job status, a websocket stream of state changes
// and Prometheus metrics.
package api
