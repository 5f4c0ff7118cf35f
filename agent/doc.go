// Copyright (c) FinFlow Authors.
// Licensed under the MIT License.

/*
Package agent provides the Worker, the single execution unit of a crew.

# Overview

A Worker is parametrized by a Config (role, goal, backstory, limits), a
Backend that performs the reasoning and a capability set of tools.Tool.
There are no worker subclasses: sequential and hierarchical crews, tool
users and delegators are all the same type with different capabilities.

# Reasoning Loop

Execute sends the role, goal, task description, expected output and inputs
to the Backend. Each answer is one of:

  - a delegation request, handled against the worker's coworkers
  - tool calls, run in the order requested; results are fed back
  - a final answer, which ends the loop

The loop is bounded by Config.MaxIterations. A tool outside the capability
set is reported back to the backend as an error observation.

# Retries

Every backend call and tool call runs under a retry.Retryer with
RetryBudget+1 attempts. Errors typed as non-retryable are not retried: for
tools they become observations, for the backend they fail the task.
Exhaustion fails the task.

# Delegation

Delegation is allowed only with AllowDelegation. The delegation chain, its
maximum depth and a per-task delegation budget travel in the context; a
delegate may not hand work back to any worker already on the chain.
Rejected requests are returned to the backend as observations.

# Artifacts

Workers never write artifacts. The crew binds file tools to the task's
output locator and commits the result after Execute returns.
*/
package agent
