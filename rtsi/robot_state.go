package rtsi

import "strconv"

// RobotMode is the controller robot mode reported in "robot_mode".
type RobotMode int32

const (
	RobotModeUnknown            RobotMode = -2
	RobotModeNoController       RobotMode = -1
	RobotModeDisconnected       RobotMode = 0
	RobotModeConfirmSafety      RobotMode = 1
	RobotModeBooting            RobotMode = 2
	RobotModePowerOff           RobotMode = 3
	RobotModePowerOn            RobotMode = 4
	RobotModeIdle               RobotMode = 5
	RobotModeBackdrive          RobotMode = 6
	RobotModeRunning            RobotMode = 7
	RobotModeUpdatingFirmware   RobotMode = 8
	RobotModeWaitingCalibration RobotMode = 9
)

var robotModeNames = map[RobotMode]string{
	RobotModeUnknown:            "UNKNOWN",
	RobotModeNoController:       "NO_CONTROLLER",
	RobotModeDisconnected:       "DISCONNECTED",
	RobotModeConfirmSafety:      "CONFIRM_SAFETY",
	RobotModeBooting:            "BOOTING",
	RobotModePowerOff:           "POWER_OFF",
	RobotModePowerOn:            "POWER_ON",
	RobotModeIdle:               "IDLE",
	RobotModeBackdrive:          "BACKDRIVE",
	RobotModeRunning:            "RUNNING",
	RobotModeUpdatingFirmware:   "UPDATING_FIRMWARE",
	RobotModeWaitingCalibration: "WAITING_CALIBRATION",
}

func (m RobotMode) String() string {
	if s, ok := robotModeNames[m]; ok {
		return s
	}

	return "RobotMode(" + strconv.Itoa(int(m)) + ")"
}

// SafetyMode is the safety state reported in "safety_status".
type SafetyMode int32

const (
	SafetyModeUnknown                          SafetyMode = 0
	SafetyModeNormal                           SafetyMode = 1
	SafetyModeReduced                          SafetyMode = 2
	SafetyModeProtectiveStop                   SafetyMode = 3
	SafetyModeRecovery                         SafetyMode = 4
	SafetyModeSafeguardStop                    SafetyMode = 5
	SafetyModeSystemEmergencyStop              SafetyMode = 6
	SafetyModeRobotEmergencyStop               SafetyMode = 7
	SafetyModeViolation                        SafetyMode = 8
	SafetyModeFault                            SafetyMode = 9
	SafetyModeValidateJointID                  SafetyMode = 10
	SafetyModeUndefined                        SafetyMode = 11
	SafetyModeAutomaticModeSafeguardStop       SafetyMode = 12
	SafetyModeSystemThreePositionEnablingStop  SafetyMode = 13
	SafetyModeTeachPendantThreePositionEnabled SafetyMode = 14
)

var safetyModeNames = map[SafetyMode]string{
	SafetyModeUnknown:                          "UNKNOWN",
	SafetyModeNormal:                           "NORMAL",
	SafetyModeReduced:                          "REDUCED",
	SafetyModeProtectiveStop:                   "PROTECTIVE_STOP",
	SafetyModeRecovery:                         "RECOVERY",
	SafetyModeSafeguardStop:                    "SAFEGUARD_STOP",
	SafetyModeSystemEmergencyStop:              "SYSTEM_EMERGENCY_STOP",
	SafetyModeRobotEmergencyStop:               "ROBOT_EMERGENCY_STOP",
	SafetyModeViolation:                        "VIOLATION",
	SafetyModeFault:                            "FAULT",
	SafetyModeValidateJointID:                  "VALIDATE_JOINT_ID",
	SafetyModeUndefined:                        "UNDEFINED_SAFETY_MODE",
	SafetyModeAutomaticModeSafeguardStop:       "AUTOMATIC_MODE_SAFEGUARD_STOP",
	SafetyModeSystemThreePositionEnablingStop:  "SYSTEM_THREE_POSITION_ENABLING_STOP",
	SafetyModeTeachPendantThreePositionEnabled: "TP_THREE_POSITION_ENABLING_STOP",
}

func (m SafetyMode) String() string {
	if s, ok := safetyModeNames[m]; ok {
		return s
	}

	return "SafetyMode(" + strconv.Itoa(int(m)) + ")"
}

// JointMode is the per-joint state reported in "joint_mode".
type JointMode int32

const (
	JointModeReset               JointMode = 235
	JointModeShuttingDown        JointMode = 236
	JointModeBackdrive           JointMode = 238
	JointModePowerOff            JointMode = 239
	JointModeReadyForPowerOff    JointMode = 240
	JointModeNotResponding       JointMode = 245
	JointModeMotorInitialisation JointMode = 246
	JointModeBooting             JointMode = 247
	JointModeBootloader          JointMode = 249
	JointModeViolation           JointMode = 251
	JointModeFault               JointMode = 252
	JointModeRunning             JointMode = 253
	JointModeIdle                JointMode = 255
)

// TaskStatus is the script runtime state reported in "runtime_state".
type TaskStatus uint32

const (
	TaskStatusUnknown TaskStatus = 0
	TaskStatusPlaying TaskStatus = 1
	TaskStatusPaused  TaskStatus = 2
	TaskStatusStopped TaskStatus = 3
)

func (s TaskStatus) String() string {
	switch s {
	case TaskStatusPlaying:
		return "PLAYING"
	case TaskStatusPaused:
		return "PAUSED"
	case TaskStatusStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}
