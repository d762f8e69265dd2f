// Package tv carries the ambient-surface state machines for TV and kiosk
// deployments: a scene manager deciding the coarse UI mode (ambient,
// interactive, alert) and a widget scheduler rotating the primary ambient
// surface.
//
// Scene priority:
//   - Alert strictly dominates interactive. ToInteractive while an alert is
//     showing is absorbed as a no-op rather than raising an error, so input
//     storms from remote controls cannot dismiss an alert by accident.
//
// Motion fairness:
//   - At most one enabled widget may be classified MotionHigh at any time.
//     The registry enforces the invariant at enable time by parking
//     high-motion siblings, and the scheduler re-checks it when a rotation
//     step lands on a high-motion widget.
//
// Both machines take injected clocks and timer factories so tests drive
// transitions deterministically, and publish typed changes rather than
// stringly-named platform events.
package tv
