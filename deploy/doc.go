// Package deploy publishes generated projects to a GitHub organization and
// wires them into a docker-compose infrastructure repository.
//
// Publishing creates (or reuses) a private repository, commits an Actions
// workflow that builds and pushes the container image, then upserts every
// project file. Wiring adds a service entry to the compose manifest of the
// infra repository so the image is pulled and routed on the next rollout.
//
// All hosting calls go through the Forge interface; GitHubForge implements
// it with google/go-github.
package deploy
