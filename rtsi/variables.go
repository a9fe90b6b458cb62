package rtsi

import "strconv"

// Output variable names.
const (
	VarTimestamp                = "timestamp"
	VarPayloadMass              = "payload_mass"
	VarPayloadCog               = "payload_cog"
	VarScriptControlLine        = "script_control_line"
	VarTargetJointPositions     = "target_joint_positions"
	VarTargetJointSpeeds        = "target_joint_speeds"
	VarActualJointPositions     = "actual_joint_positions"
	VarActualJointTorques       = "actual_joint_torques"
	VarActualJointSpeeds        = "actual_joint_speeds"
	VarActualJointCurrent       = "actual_joint_current"
	VarJointTemperatures        = "joint_temperatures"
	VarActualTCPPose            = "actual_TCP_pose"
	VarActualTCPSpeed           = "actual_TCP_speed"
	VarActualTCPForce           = "actual_TCP_force"
	VarTargetTCPPose            = "target_TCP_pose"
	VarTargetTCPSpeed           = "target_TCP_speed"
	VarDigitalInputBits         = "actual_digital_input_bits"
	VarDigitalOutputBits        = "actual_digital_output_bits"
	VarRobotMode                = "robot_mode"
	VarJointMode                = "joint_mode"
	VarSafetyStatus             = "safety_status"
	VarSpeedScaling             = "speed_scaling"
	VarTargetSpeedFraction      = "target_speed_fraction"
	VarRobotVoltage             = "actual_robot_voltage"
	VarRobotCurrent             = "actual_robot_current"
	VarRuntimeState             = "runtime_state"
	VarElbowPosition            = "elbow_position"
	VarElbowVelocity            = "elbow_velocity"
	VarRobotStatusBits          = "robot_status_bits"
	VarSafetyStatusBits         = "safety_status_bits"
	VarIOCurrent                = "io_current"
	VarToolOutputVoltage        = "tool_output_voltage"
	VarToolOutputCurrent        = "tool_output_current"
	VarToolTemperature          = "tool_temperature"
	VarOutputBitRegisters0To31  = "output_bit_registers0_to_31"
	VarOutputBitRegisters32To63 = "output_bit_registers32_to_63"
	VarInputBitRegisters0To31   = "input_bit_registers0_to_31"
	VarInputBitRegisters32To63  = "input_bit_registers32_to_63"
)

// Input variable names.
const (
	VarSpeedSliderMask               = "speed_slider_mask"
	VarSpeedSliderFraction           = "speed_slider_fraction"
	VarStandardDigitalOutputMask     = "standard_digital_output_mask"
	VarStandardDigitalOutput         = "standard_digital_output"
	VarConfigurableDigitalOutputMask = "configurable_digital_output_mask"
	VarConfigurableDigitalOutput     = "configurable_digital_output"
	VarToolDigitalOutputMask         = "tool_digital_output_mask"
	VarToolDigitalOutput             = "tool_digital_output"
	VarStandardAnalogOutputMask      = "standard_analog_output_mask"
	VarStandardAnalogOutputType      = "standard_analog_output_type"
	VarStandardAnalogOutput0         = "standard_analog_output_0"
	VarStandardAnalogOutput1         = "standard_analog_output_1"
	VarExternalForceTorque           = "external_force_torque"
)

// StandardAnalogInput returns the output variable name of standard analog input index.
func StandardAnalogInput(index int) string {
	return "standard_analog_input" + strconv.Itoa(index)
}

// StandardAnalogOutput returns the output variable name of standard analog output index.
func StandardAnalogOutput(index int) string {
	return "standard_analog_output" + strconv.Itoa(index)
}

// InputIntRegister returns the variable name of input integer register index.
func InputIntRegister(index int) string { return "input_int_register_" + strconv.Itoa(index) }

// OutputIntRegister returns the variable name of output integer register index.
func OutputIntRegister(index int) string { return "output_int_register_" + strconv.Itoa(index) }

// InputDoubleRegister returns the variable name of input double register index.
func InputDoubleRegister(index int) string { return "input_double_register_" + strconv.Itoa(index) }

// OutputDoubleRegister returns the variable name of output double register index.
func OutputDoubleRegister(index int) string { return "output_double_register_" + strconv.Itoa(index) }

// InputBitRegister returns the variable name of input bit register index.
func InputBitRegister(index int) string { return "input_bit_register_" + strconv.Itoa(index) }

// OutputBitRegister returns the variable name of output bit register index.
func OutputBitRegister(index int) string { return "output_bit_register_" + strconv.Itoa(index) }
