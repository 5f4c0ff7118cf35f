// Copyright (c) FinFlow Authors.
// Licensed under the MIT License.

/*
Package report wires the financial report flow.

Two start steps run concurrently: visualizer_crew_kickoff builds market
charts and news_crew_kickoff writes a news article. report_crew_kickoff
listens to both (AND join) and merges their artifacts into report.md.

Each step handler builds its crew from the embedded catalogs (or from
catalog.dir when configured) and kicks it off. The scheduler retries a
failed kickoff with the retry.kickoff_attempts policy. The visualizer step
is best-effort: once its attempts are exhausted the report is still written
from the news alone. Step, task, tool and retry outcomes feed the Prometheus
collector, and finished runs are saved to the history store.
*/
package report
